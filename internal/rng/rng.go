package rng

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Source produces an unpredictable integer on demand. The lottery's
// selection algorithm depends only on this interface, so a verifiable
// randomness beacon can replace the default without touching engine code.
type Source interface {
	// Uniform returns a uniformly distributed value in [0, n).
	Uniform(n uint64) (uint64, error)
}

// Crypto draws from crypto/rand.
type Crypto struct{}

func (Crypto) Uniform(n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("uniform range must be positive")
	}
	v, err := rand.Int(rand.Reader, new(big.Int).SetUint64(n))
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}
