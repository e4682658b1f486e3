package worker

import "errors"

const logFieldOperation = "operation"

// ErrPanic wraps a value recovered from a panic.
var ErrPanic = errors.New("panic")
