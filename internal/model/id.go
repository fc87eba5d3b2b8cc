package model

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// IDLength is the default length of generated ids.
const IDLength = 12

// NewID returns a random identifier of IDLength characters.
func NewID() string {
	return NewIDN(IDLength)
}

// NewIDN returns a random identifier of n characters drawn from a 62-character
// alphabet. It uses crypto/rand and falls back to math/rand if that fails.
func NewIDN(n int) string {
	if n <= 0 {
		n = IDLength
	}
	result := make([]byte, n)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range result {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return insecureID(n)
		}
		result[i] = idAlphabet[v.Int64()]
	}
	return string(result)
}

func insecureID(n int) string {
	result := make([]byte, n)
	for i := range result {
		result[i] = idAlphabet[mrand.IntN(len(idAlphabet))]
	}
	return string(result)
}
