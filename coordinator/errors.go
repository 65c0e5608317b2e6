package coordinator

import "errors"

// ErrTransient marks a batch execution failure as retryable; wrap it
// with fmt.Errorf("%w: ...", ErrTransient) from a BatchExecutor to opt
// a failure into the bounded exponential-backoff retry path instead of
// short-circuiting straight to failed.
var ErrTransient = errors.New("coordinator: transient failure")

// ErrRunAborted is the run-level error returned when the success-ratio
// floor is breached after the minimum sample size.
var ErrRunAborted = errors.New("coordinator: run aborted, success ratio below floor")

// ErrRunNotFound is returned by RunRegistry methods given an unknown run id.
var ErrRunNotFound = errors.New("coordinator: run not found")

// ErrAlreadyTerminal is returned by Cancel on a run that has already
// reached a terminal state.
var ErrAlreadyTerminal = errors.New("coordinator: run already in a terminal state")
