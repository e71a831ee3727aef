package app

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// Order codes avoid characters that are ambiguous when read aloud or
// handwritten (0/O, 1/I, 2/Z, 5/S, 6/G).
const orderCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ3789"
const orderCodeLength = 5

func newOrderCode() string {
	max := big.NewInt(int64(len(orderCodeAlphabet)))
	code := make([]byte, orderCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			code[i] = orderCodeAlphabet[0]
			continue
		}
		code[i] = orderCodeAlphabet[n.Int64()]
	}
	return string(code)
}
