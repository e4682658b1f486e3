package mocks

import "errors"

var (
	// ErrOwnerLookup is a canned failure for owner resolution tests.
	ErrOwnerLookup = errors.New("owner lookup failed")
)
