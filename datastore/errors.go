package datastore

import "errors"

// ErrNotFound is returned when a dataset is missing across every
// backend in the fallback chain.
var ErrNotFound = errors.New("datastore: not found")

// ErrBackendUnavailable is surfaced only when every backend in the
// fallback chain failed to serve a request (as opposed to one backend
// correctly reporting the dataset absent).
var ErrBackendUnavailable = errors.New("datastore: all backends unavailable")

// ErrClosed is returned by any Store operation invoked after Close.
var ErrClosed = errors.New("datastore: store closed")
