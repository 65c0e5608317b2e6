package trust

import "errors"

// ErrUnknownRule identifies a missing rule entry. No Tracker method
// returns it: GetTrust, GetCI, Update, BatchUpdate and Restore all
// create a missing entry on demand.
var ErrUnknownRule = errors.New("trust: unknown rule")
