package errors

import "errors"

// ErrAlreadyInitialized is returned when authority material already exists at the target location.
var ErrAlreadyInitialized = errors.New("certificate authority already initialized")

// ErrInvalidRequest is returned when a certificate request lacks the fields its role requires.
var ErrInvalidRequest = errors.New("invalid certificate request")

// ErrInvalidHostname is returned when a control service hostname is not a DNS name.
var ErrInvalidHostname = errors.New("invalid hostname")

// ErrNotFound is returned when certificate material is absent.
var ErrNotFound = errors.New("not found")

// ErrCorruptData is returned when stored certificate material can't be parsed.
var ErrCorruptData = errors.New("corrupt data")

// ErrIO is returned when certificate material can't be read or written.
var ErrIO = errors.New("i/o error")

// ErrSignatureVerification is returned when a certificate does not chain to the cluster root.
var ErrSignatureVerification = errors.New("signature verification failed")
