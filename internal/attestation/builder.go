package attestation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrClock   = errors.New("unable to read system clock")
	ErrSigning = errors.New("unable to sign attestation")
)

type Builder struct {
	signer Signer
	scope  IntentScope
	now    func() time.Time
}

func NewBuilder(signer Signer, scope IntentScope) *Builder {
	return NewBuilderWithClock(signer, scope, time.Now)
}

func NewBuilderWithClock(signer Signer, scope IntentScope, now func() time.Time) *Builder {
	return &Builder{signer: signer, scope: scope, now: now}
}

func (b *Builder) Signer() Signer {
	return b.signer
}

func (b *Builder) Scope() IntentScope {
	return b.scope
}

// Build stamps data with the current time and the builder's intent scope
// and signs its canonical encoding.
func Build[T Payload](b *Builder, data T) (Signed[T], error) {
	now := b.now()
	if now.Before(time.Unix(0, 0)) {
		return Signed[T]{}, fmt.Errorf("%w: time %s is before the unix epoch", ErrClock, now.UTC().Format(time.RFC3339))
	}

	msg := IntentMessage[T]{
		Intent:      b.scope,
		TimestampMs: uint64(now.UnixMilli()),
		Data:        data,
	}

	if b.signer == nil {
		return Signed[T]{}, fmt.Errorf("%w: no signing key available", ErrSigning)
	}

	signature, err := b.signer.Sign(msg.Canonical())
	if err != nil {
		return Signed[T]{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	if len(signature) == 0 {
		return Signed[T]{}, fmt.Errorf("%w: signer returned an empty signature", ErrSigning)
	}

	return Signed[T]{Response: msg, Signature: signature}, nil
}
