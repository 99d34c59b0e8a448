package errors

import "fmt"

// Category-specific constructors for the execution engine's error taxonomy.

// ConfigurationErrorf reports a memory budget or configuration that cannot
// make progress. Retrying with the same configuration cannot succeed.
func ConfigurationErrorf(format string, args ...interface{}) *Error {
	return Newf(ConfigurationLimitExceed, format, args...)
}

// TypeMismatchErrorf reports values that remain incomparable after coercion.
func TypeMismatchErrorf(format string, args ...interface{}) *Error {
	return Newf(DatatypeMismatch, format, args...)
}

// ResourceError reports a temporary storage failure, wrapping the underlying
// I/O error.
func ResourceError(err error, message string) *Error {
	return Wrap(err, IOError, message)
}

// ResourceErrorf reports a temporary storage failure with a formatted message.
func ResourceErrorf(err error, format string, args ...interface{}) *Error {
	return &Error{Code: IOError, Message: fmt.Sprintf(format, args...), cause: err}
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return CodeOf(err) == ConfigurationLimitExceed
}

// IsTypeMismatch reports whether err is a type mismatch error.
func IsTypeMismatch(err error) bool {
	return CodeOf(err) == DatatypeMismatch
}

// IsResource reports whether err is a temporary storage error.
func IsResource(err error) bool {
	code := CodeOf(err)
	return code == IOError || code == DiskFull
}
