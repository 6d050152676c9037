package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and transports return
// these (optionally wrapped) so services can translate them into operator
// facing behavior without string matching.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in a tier
// - ErrExpired: ticket record past its expiry
// - ErrInvalidCredential: credential cannot be deciphered or parsed
// - ErrPersistenceFailed: every storage tier rejected a write
// - ErrUnavailable: backend temporarily unreachable
var (
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("expired")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrUnavailable       = errors.New("unavailable")
)
