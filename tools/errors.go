package tools

import "github.com/cockroachdb/errors"

// ErrBadArguments marks errors of missing or mistyped tool arguments.
var ErrBadArguments = errors.New("bad arguments")
