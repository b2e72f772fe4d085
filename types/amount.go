package types

// Amount is a quantity of coin in satoshi units.
type Amount = int64

const (
	// Coin is the number of satoshi units in one coin.
	Coin Amount = 100_000_000
)
