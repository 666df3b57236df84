package imap

import "fmt"

// AuthError marks rejected credentials. It is terminal: reconnect loops stop
// instead of hammering the server with a bad password.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError marks a failed network-level operation. Transport errors are
// retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
