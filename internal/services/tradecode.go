package services

import (
	"crypto/rand"
	"math/big"
)

const (
	tradeCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tradeCodeLength   = 5
)

// NewTradeCode returns '#' followed by five random characters from [A-Z0-9].
func NewTradeCode() (string, error) {
	buf := make([]byte, 0, tradeCodeLength+1)
	buf = append(buf, '#')
	limit := big.NewInt(int64(len(tradeCodeAlphabet)))
	for i := 0; i < tradeCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf = append(buf, tradeCodeAlphabet[n.Int64()])
	}
	return string(buf), nil
}
