package services

import (
	"errors"
	"sync/atomic"
)

var ErrEmptyWalletPool = errors.New("escrow wallet pool is empty")

// WalletPool hands out escrow addresses round-robin.
type WalletPool struct {
	addresses []string
	next      atomic.Uint64
}

func NewWalletPool(addresses []string) (*WalletPool, error) {
	if len(addresses) == 0 {
		return nil, ErrEmptyWalletPool
	}
	return &WalletPool{addresses: append([]string(nil), addresses...)}, nil
}

func (p *WalletPool) Next() string {
	n := p.next.Add(1) - 1
	return p.addresses[n%uint64(len(p.addresses))]
}
