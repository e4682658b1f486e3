package app

import "errors"

var (
	errSymbolRequired = errors.New("--symbol is required")
	errInvalidDays    = errors.New("--days must be positive")
)
