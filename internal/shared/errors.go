package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Lifecycle errors
	ErrNotFound          = fmt.Errorf("not found")
	ErrAlreadyInProgress = fmt.Errorf("track is already under review")
	ErrAlreadyDecided    = fmt.Errorf("track has already been decided")
	ErrNotOwner          = fmt.Errorf("track is under review by another administrator")
	ErrDuplicateArtifact = fmt.Errorf("track is already in the playlist")

	// Download and storage errors
	ErrOversizedArtifact  = fmt.Errorf("artifact exceeds size limit")
	ErrStorageFailure     = fmt.Errorf("storage failure")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrFetchFailed        = fmt.Errorf("fetch failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
