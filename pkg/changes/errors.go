package changes

import "errors"

// ErrNotAValue is returned when an object attribute holds something other
// than a string, number, bool or a list of those.
var ErrNotAValue = errors.New("changes: attempting to store a non-value")
