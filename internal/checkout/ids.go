package checkout

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenGenerator produces an opaque identifier. Generators are injectable so
// tests can force collisions.
type TokenGenerator func() (string, error)

const (
	billCodePrefix     = "BILL-"
	billCodeBytes      = 8
	transactionIDBytes = 16
)

func NewBillCode() (string, error) {
	token, err := randomHex(billCodeBytes)
	if err != nil {
		return "", err
	}
	return billCodePrefix + token, nil
}

func NewTransactionID() (string, error) {
	return randomHex(transactionIDBytes)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
