package storage

import "errors"

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrInvalidCID     = errors.New("storage: invalid cid")
	ErrCIDMismatch    = errors.New("storage: cid mismatch")
	ErrImmutable      = errors.New("storage: immutable object mismatch")
	ErrNoBackends     = errors.New("storage: no backends configured")
	ErrDigestMismatch = errors.New("storage: document digest mismatch")
	ErrCorrupt        = errors.New("storage: stored block is not a document")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
