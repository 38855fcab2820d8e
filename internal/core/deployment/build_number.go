package deployment

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBuildNumberLayout renders build numbers as UTC timestamps
const DefaultBuildNumberLayout = "20060102150405"

// BuildNumber is a value object identifying one build. It becomes part of
// the package file name, so it may not contain path separators or spaces.
type BuildNumber struct {
	value string
}

// NewBuildNumber creates a BuildNumber with validation
func NewBuildNumber(value string) (BuildNumber, error) {
	if value == "" {
		return BuildNumber{}, fmt.Errorf("%w: cannot be empty", ErrInvalidBuildNumber)
	}
	if strings.ContainsAny(value, "/\\ \t\n") || value == "." || value == ".." {
		return BuildNumber{}, fmt.Errorf("%w: %q", ErrInvalidBuildNumber, value)
	}
	return BuildNumber{value: value}, nil
}

// TimestampBuildNumber derives a build number from t. An empty layout uses
// DefaultBuildNumberLayout.
func TimestampBuildNumber(t time.Time, layout string) BuildNumber {
	if layout == "" {
		layout = DefaultBuildNumberLayout
	}
	return BuildNumber{value: t.UTC().Format(layout)}
}

// Value returns the string value of the BuildNumber
func (b BuildNumber) Value() string {
	return b.value
}

// String implements the Stringer interface
func (b BuildNumber) String() string {
	return b.value
}

// IsZero reports whether the build number is unset
func (b BuildNumber) IsZero() bool {
	return b.value == ""
}
