package filter

import "fmt"

// ErrorCode classifies a FilterError per the error kinds in §7.
type ErrorCode string

const (
	// ErrProtocolViolation covers unexpected handshake strings, missing
	// required capabilities, malformed header keys, and stream truncation.
	ErrProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	// ErrObjectStore covers a non-zero exit from the DVCS subprocess during
	// store/fetch/stage/show.
	ErrObjectStore ErrorCode = "OBJECT_STORE_FAILURE"
	// ErrFilesystem covers inability to create a chunk directory, write a
	// manifest, or otherwise touch the chunkroot.
	ErrFilesystem ErrorCode = "FILESYSTEM_FAILURE"
	// ErrConsistency covers the smudge-chunk-manifest blob/pathname mismatch.
	ErrConsistency ErrorCode = "CONSISTENCY_ASSERTION"
)

// FilterError is the error type this package constructs for the failures it
// detects itself; errors from the packet channel are returned unwrapped. Every
// returned error is fatal to the session (§7): the request loop does not
// attempt request-level recovery.
type FilterError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *FilterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *FilterError) Unwrap() error {
	return e.Cause
}

func protocolErrf(format string, args ...any) *FilterError {
	return &FilterError{Code: ErrProtocolViolation, Message: fmt.Sprintf(format, args...)}
}

func objectStoreErr(message string, cause error) *FilterError {
	return &FilterError{Code: ErrObjectStore, Message: message, Cause: cause}
}

func filesystemErr(message string, cause error) *FilterError {
	return &FilterError{Code: ErrFilesystem, Message: message, Cause: cause}
}

func consistencyErrf(format string, args ...any) *FilterError {
	return &FilterError{Code: ErrConsistency, Message: fmt.Sprintf(format, args...)}
}
