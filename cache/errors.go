package cache

import "errors"

var (
	// ErrArtifactRepositoryRequired is returned when no artifact repository is supplied.
	ErrArtifactRepositoryRequired = errors.New("artifact repository is required")

	// ErrBuilderRequired is returned when GetOrBuild is called without a builder.
	ErrBuilderRequired = errors.New("builder is required")

	// ErrFingerprintRequired is returned for an empty fingerprint.
	ErrFingerprintRequired = errors.New("fingerprint is required")
)
