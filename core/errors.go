package core

import "errors"

// Sentinel errors shared across the replica, signer and client operations.
// Following the teacher's convention (core/common_structs.go,
// core/cross_chain.go), these are package-level vars so callers can match
// with errors.Is rather than string comparison.
var (
	// ErrUnauthorized is returned when a caller is not in the writer
	// allowlist or is not the configured owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the requested digest or batch does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDigestMismatch indicates a reassembled blob does not hash to the
	// digest carried by its chunks.
	ErrDigestMismatch = errors.New("digest mismatch")

	// ErrNotRetrievable is returned when no replica in a set produced a
	// verified blob.
	ErrNotRetrievable = errors.New("blob not retrievable from any replica")

	// ErrExpired is returned by GetBlob when the BlobKey has passed its
	// expiry timestamp.
	ErrExpired = errors.New("blob key expired")

	// ErrInvariantViolation marks a condition that should never occur
	// (e.g. an indexed digest with no backing batch); it always indicates
	// data corruption at the signer.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrSignerUnavailable is returned when the external key-custody
	// signer could not be reached.
	ErrSignerUnavailable = errors.New("external signer unavailable")

	// ErrInvalidConfig is returned by NewSelectionTable when given no
	// replicas or a non-positive table dimension.
	ErrInvalidConfig = errors.New("invalid config")
)
