package rules

import "errors"

var (
	// ErrDuplicateID is returned by Register when a rule id already exists.
	ErrDuplicateID = errors.New("rules: duplicate rule id")
	// ErrRegistryFrozen is returned by Register/Unregister once Freeze has
	// been called; the coordinator requires a stable rule set for a run.
	ErrRegistryFrozen = errors.New("rules: registry is frozen")
	// ErrConflictingEffects is raised at Freeze when two rules at the same
	// priority tier declare overlapping write-sets (spec §4.2).
	ErrConflictingEffects = errors.New("rules: conflicting effects")
	// ErrInvalidPattern is returned when a declared read/write glob pattern
	// fails to compile.
	ErrInvalidPattern = errors.New("rules: invalid read/write pattern")
)
