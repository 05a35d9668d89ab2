package clicks

import "errors"

// ErrInvalidArgument is returned when a disambiguator is built without both
// callbacks.
var ErrInvalidArgument = errors.New("invalid argument")
