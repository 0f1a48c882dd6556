package apperrors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	TypeIO           ErrorType = "IO"           // Read/write/fetch failure on a backend or output
	TypeFormat       ErrorType = "Format"       // Bad magic, unsupported version, truncated dictionary
	TypeIntegrity    ErrorType = "Integrity"    // Checksum or decompressed length mismatch
	TypeMissingChunk ErrorType = "MissingChunk" // Archive contradicts itself
	TypeChunking     ErrorType = "Chunking"     // Seed or input stream failed mid-read
	TypeConnection   ErrorType = "Connection"   // Network issue
	TypeAuth         ErrorType = "Auth"         // Basic auth, SSH keys, S3 credentials
	TypeConfig       ErrorType = "Config"       // Invalid flags, missing required params
	TypeResource     ErrorType = "Resource"     // Permission denied, out of space, file not found
	TypeInternal     ErrorType = "Internal"     // Unexpected internal failure
)

// AppError is a rich error type that provides categorize and hints for users.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Hint    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches two AppErrors by type and message so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == e.Message
}

// New creates a new AppError
func New(t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Hint:    hint,
	}
}

// Newf creates a new AppError with a formatted message and no hint.
func Newf(t ErrorType, format string, args ...any) *AppError {
	return &AppError{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
		Hint:    hint,
	}
}

// Wrapf wraps err with a formatted message and no hint.
func Wrapf(err error, t ErrorType, format string, args ...any) *AppError {
	return &AppError{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsType reports whether any AppError in err's chain has type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == t {
			return true
		}
		err = appErr.Err
	}
	return false
}

// TypeOf returns the type of the outermost AppError in err's chain, or
// TypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return TypeInternal
}

// HintOf returns the first non-empty hint found in err's chain.
func HintOf(err error) string {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return ""
		}
		if appErr.Hint != "" {
			return appErr.Hint
		}
		err = appErr.Err
	}
	return ""
}

var (
	ErrIntegrityMismatch = New(TypeIntegrity, "Integrity failure", "The archive or output may be corrupt or tampered with. Verify the source integrity.")
	ErrCorruptArchive    = New(TypeFormat, "corrupt archive", "The archive header or dictionary is damaged. Rebuild it with 'bita compress'.")
	ErrHashCollision     = New(TypeIntegrity, "chunk hash collision", "Two different chunks share a truncated hash. Rebuild the archive with a longer --hash-length.")
)
