package domain

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	privateIDLength = 40
	publicIDLength  = 20
	lowerAlphabet   = "abcdefghijklmnopqrstuvwxyz"
)

// ServiceIdentity names a shared directory towards the relay.
type ServiceIdentity struct {
	PublicID  string `yaml:"publicId"`
	PrivateID string `yaml:"privateId"`
}

// NewServiceIdentity generates a random private id and derives the public one.
func NewServiceIdentity() (ServiceIdentity, error) {
	buf := make([]byte, privateIDLength)
	max := big.NewInt(int64(len(lowerAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return ServiceIdentity{}, fmt.Errorf("generate private id: %w", err)
		}
		buf[i] = lowerAlphabet[n.Int64()]
	}
	private := string(buf)
	return ServiceIdentity{PublicID: DerivePublicID(private), PrivateID: private}, nil
}

// DerivePublicID returns the first 20 hex characters of sha1(privateID).
func DerivePublicID(privateID string) string {
	sum := sha1.Sum([]byte(privateID))
	return hex.EncodeToString(sum[:])[:publicIDLength]
}

// Valid reports whether both ids are set.
func (s ServiceIdentity) Valid() bool {
	return s.PublicID != "" && s.PrivateID != ""
}
