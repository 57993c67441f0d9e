package server

import "github.com/pkg/errors"

// Common errors in the server package
var (
	// ErrServerClosed is returned by ServeConn once Shutdown has been called
	ErrServerClosed = errors.New("server closed")

	// ErrNoVerifier is returned when the server has no token verifier configured
	ErrNoVerifier = errors.New("no token verifier configured")
)
