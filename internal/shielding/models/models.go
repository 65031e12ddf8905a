package models

import (
	"bytes"
	"fmt"
	"time"

	"discard/internal/elgamal"
	stealthModels "discard/internal/stealth/models"
)

// PoolBalance is the encrypted running total of everything shielded into a
// pool. Version increases by one on every accepted update.
type PoolBalance struct {
	PoolID       string
	PublicKey    []byte
	Balance      []byte
	Version      int64
	DepositCount int64
	UpdatedAt    time.Time
}

// NewPool returns an empty pool: the unblinded encryption of zero.
func NewPool(poolID string, pub *elgamal.PublicKey, now time.Time) (*PoolBalance, error) {
	zero, err := elgamal.Zero().MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &PoolBalance{
		PoolID:    poolID,
		PublicKey: pub.Bytes(),
		Balance:   zero,
		UpdatedAt: now,
	}, nil
}

// Ciphertext decodes the balance and binds it to pub. A pool created under a
// different key is rejected.
func (p *PoolBalance) Ciphertext(pub *elgamal.PublicKey) (*elgamal.Ciphertext, error) {
	if !bytes.Equal(p.PublicKey, pub.Bytes()) {
		return nil, fmt.Errorf("pool %s: %w", p.PoolID, elgamal.ErrKeyMismatch)
	}
	ct, err := elgamal.ParseCiphertext(p.Balance)
	if err != nil {
		return nil, err
	}
	return ct.BindKey(pub), nil
}

// Credit returns the next version of the pool with ct added.
func (p *PoolBalance) Credit(pub *elgamal.PublicKey, ct *elgamal.Ciphertext, now time.Time) (*PoolBalance, error) {
	current, err := p.Ciphertext(pub)
	if err != nil {
		return nil, err
	}
	sum, err := elgamal.AddUnderKey(pub, current, ct)
	if err != nil {
		return nil, err
	}
	raw, err := sum.MarshalBinary()
	if err != nil {
		return nil, err
	}
	next := p.Clone()
	next.Balance = raw
	next.Version = p.Version + 1
	next.DepositCount = p.DepositCount + 1
	next.UpdatedAt = now
	return next, nil
}

func (p *PoolBalance) Clone() *PoolBalance {
	c := *p
	c.PublicKey = append([]byte(nil), p.PublicKey...)
	c.Balance = append([]byte(nil), p.Balance...)
	return &c
}

// Shield is the outcome of shielding one deposit. EncryptedDeposit is a
// rerandomized encryption of the deposit amount under the pool key.
type Shield struct {
	Address          *stealthModels.AddressView
	EncryptedDeposit []byte
	PoolVersion      int64
}
