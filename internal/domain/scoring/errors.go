package scoring

import "errors"

var (
	// ErrProfileCount is logged when a lookup returns fewer profiles than
	// DIDs requested. The positional join is truncated to the shorter list.
	ErrProfileCount = errors.New("profile lookup returned fewer profiles than requested")
	// ErrNoLookup is returned when ranking needs profiles but no lookup was
	// configured.
	ErrNoLookup = errors.New("no profile lookup configured")
)
