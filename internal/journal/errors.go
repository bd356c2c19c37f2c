package journal

import "errors"

// ErrSessionNotFound is a typed error distinguishable from generic IO
// failures, returned when the requested session file is missing.
var ErrSessionNotFound = errors.New("journal: session not found")

// ErrEmptySession is returned when a session file exists but contains no
// lines at all.
var ErrEmptySession = errors.New("journal: empty session")

// ErrEntryNotFound is returned by operations that require an existing
// entry id (create_branch_from, get_path_to_entry) when the id is absent.
var ErrEntryNotFound = errors.New("journal: entry not found")

// ErrLockAborted reports that lock acquisition was cancelled rather than
// failing outright.
var ErrLockAborted = errors.New("journal: lock acquisition aborted")
