package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigInvalid(path string, cause error) *BuildError {
	return Wrap(cause, CategoryConfig, SeverityFatal, "configuration file could not be parsed").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *BuildError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Pipeline step errors

// CleanFailed reports that the output directory could not be removed for a
// reason other than it not existing.
func CleanFailed(dir string, cause error) *BuildError {
	return Wrap(cause, CategoryClean, SeverityFatal, "output directory removal failed").
		WithContext("path", dir)
}

// ReadFailed reports a missing or unreadable input file.
func ReadFailed(path string, cause error) *BuildError {
	return Wrap(cause, CategoryRead, SeverityFatal, "input file could not be read").
		WithContext("path", path)
}

// WriteFailed reports a failed artifact write to a sink.
func WriteFailed(path string, cause error) *BuildError {
	return Wrap(cause, CategoryWrite, SeverityFatal, "artifact write failed").
		WithContext("path", path)
}

// Infrastructure errors

func HistoryFailed(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryHistory, SeverityError, "run history operation failed").
		WithContext("operation", operation)
}

func WatchFailed(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryWatch, SeverityFatal, "watch operation failed").
		WithContext("operation", operation)
}

func InternalError(message string, cause error) *BuildError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
