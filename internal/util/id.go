package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idEntropyBytes = 12

// NewID returns a random hex identifier, used to tag requests in logs.
func NewID() string {
	buf := make([]byte, idEntropyBytes)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
