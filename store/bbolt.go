package store

import (
	"bytes"
	"errors"

	bolt "go.etcd.io/bbolt"
)

// BboltStore implements the Store interface
type BboltStore struct {
	db         *bolt.DB
	bucketName string
}

// Put stores the given value for the given key.
// The key must not be "" and the value must not be nil.
func (s BboltStore) Put(k []byte, v []byte) error {
	if err := checkKeyAndValue(k, v); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucketName))
		return b.Put(k, v)
	})
}

// Get retrieves the stored value for the given key.
func (s BboltStore) Get(k []byte) ([]byte, error) {
	if err := checkKey(k); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucketName))
		data = b.Get(k)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkValue(data); err != nil {
		return nil, err
	}

	return data, nil
}

// Exists checks whether the given key exists in the store.
func (s BboltStore) Exists(k []byte) (bool, error) {
	if err := checkKey(k); err != nil {
		return false, err
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucketName))
		return checkValue(b.Get(k))
	})

	if err != nil {
		return false, nil
	}

	return true, nil
}

func (s BboltStore) List(keyPrefix []byte) ([]*KVPair, error) {
	if len(keyPrefix) == 0 {
		return s.listFromStart()
	}

	var kvList []*KVPair

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucketName))
		cursor := b.Cursor()
		prefix := keyPrefix

		for key, v := cursor.Seek(prefix); bytes.HasPrefix(key, prefix); key, v = cursor.Next() {
			if err := checkValue(v); err != nil {
				return err
			}
			kvList = append(kvList, &KVPair{
				Key:   key,
				Value: v,
			})
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return kvList, nil
}

func (s BboltStore) listFromStart() ([]*KVPair, error) {
	var kvList []*KVPair

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucketName))
		cursor := b.Cursor()

		for key, v := cursor.First(); ; key, v = cursor.Next() {
			if key == nil {
				break
			}
			if err := checkValue(v); err != nil {
				return err
			}
			kvList = append(kvList, &KVPair{
				Key:   key,
				Value: v,
			})
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return kvList, nil
}

// Delete deletes the stored value for the given key.
// Deleting a non-existing key-value pair does NOT lead to an error.
func (s BboltStore) Delete(k []byte) error {
	if err := checkKey(k); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucketName))
		return b.Delete(k)
	})
}

// Close closes the store.
// It must be called to make sure that all open transactions finish and to release all DB resources.
func (s BboltStore) Close() error {
	return s.db.Close()
}

// NewBboltStore creates a new bbolt store at the given path.
// Note: bbolt uses an exclusive write lock on the database file so it cannot
// be shared by multiple processes.
//
// You must call the Close() method on the store when you're done working with it.
func NewBboltStore(path string, bucketName string) (BboltStore, error) {
	result := BboltStore{}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return result, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return result, err
	}

	result.db = db
	result.bucketName = bucketName

	return result, nil
}

// checkKey returns an error if k is empty
func checkKey(k []byte) error {
	if len(k) == 0 {
		return errors.New("the key should not be empty")
	}
	return nil
}

// checkValue returns an error if v is nil
func checkValue(v []byte) error {
	if v == nil {
		return errors.New("the value is missing")
	}
	return nil
}

func checkKeyAndValue(k []byte, v []byte) error {
	if err := checkKey(k); err != nil {
		return err
	}
	return checkValue(v)
}
