package lockmgr

import (
	"crypto/rand"
	"encoding/binary"
)

const (
	ownerIDLength = 16
)

// NewOwnerID creates a random owner id.
func NewOwnerID() ([]byte, error) {
	randomBytes := make([]byte, ownerIDLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}

// OwnerIDFromUint64 derives a stable owner id from a numeric id (e.g. a session id).
// Locks taken with the same derived id are re-entrant for that id.
func OwnerIDFromUint64(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}
