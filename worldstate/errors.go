package worldstate

import "errors"

// Sentinel errors returned by WorldState mutators. Mirrors the sentinel
// error block style used throughout the corpus (see engine/models.go
// in the teacher repo) rather than ad hoc fmt.Errorf strings at call sites.
var (
	// ErrInvalidValue is returned when SetVariable receives a non-finite value.
	ErrInvalidValue = errors.New("worldstate: invalid variable value")
	// ErrOutOfRange is returned when a capital operation would drive an
	// asset exposure (or the cash bucket) below zero.
	ErrOutOfRange = errors.New("worldstate: capital value out of range")
	// ErrUnknownAsset is returned by operations that require a pre-existing
	// capital bucket and are not allowed to create one implicitly.
	ErrUnknownAsset = errors.New("worldstate: unknown capital asset")
)
