package deployment

import "errors"

var (
	// ErrInvalidOptions is returned when a plan cannot be built from options
	ErrInvalidOptions = errors.New("invalid deployment options")

	// ErrInvalidBuildNumber is returned for build numbers that cannot name a package
	ErrInvalidBuildNumber = errors.New("invalid build number")

	// ErrTemplate is returned when a command argument template fails to render
	ErrTemplate = errors.New("command template error")
)
