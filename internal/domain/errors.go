package domain

import (
	"errors"
	"strconv"
)

// Category is the user-facing class of a failed request.
type Category string

const (
	CategoryValidation         Category = "ValidationError"
	CategoryToolNotInstalled   Category = "ToolNotInstalled"
	CategoryUnsupportedSource  Category = "UnsupportedSource"
	CategoryPrivateContent     Category = "PrivateContent"
	CategoryContentUnavailable Category = "ContentUnavailable"
	CategoryRegionRestricted   Category = "RegionRestricted"
	CategoryArtifactMissing    Category = "ArtifactMissing"
	CategoryParseError         Category = "ParseError"
	CategoryUnknown            Category = "Unknown"
)

// String returns the string representation of the Category.
func (c Category) String() string {
	return string(c)
}

// Domain errors.
var (
	// ErrValidation is returned when the request input is missing or malformed.
	ErrValidation = errors.New("invalid request")

	// ErrToolNotInstalled is returned when the extractor binary cannot be found or spawned.
	ErrToolNotInstalled = errors.New("extractor not installed")

	// ErrUnsupportedSource is returned when the extractor does not recognise the URL.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrPrivateContent is returned when the video is private.
	ErrPrivateContent = errors.New("private content")

	// ErrContentUnavailable is returned when the video was removed or is unavailable.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrRegionRestricted is returned when the video is blocked in this region.
	ErrRegionRestricted = errors.New("region restricted")

	// ErrArtifactMissing is returned when the extractor succeeded but no output file was found.
	ErrArtifactMissing = errors.New("downloaded file not found")

	// ErrParse is returned when the extractor output is not well-formed.
	ErrParse = errors.New("malformed extractor output")

	// ErrUnknown is returned when a failure matched no known pattern.
	ErrUnknown = errors.New("unknown extractor failure")
)

var categorySentinels = map[Category]error{
	CategoryValidation:         ErrValidation,
	CategoryToolNotInstalled:   ErrToolNotInstalled,
	CategoryUnsupportedSource:  ErrUnsupportedSource,
	CategoryPrivateContent:     ErrPrivateContent,
	CategoryContentUnavailable: ErrContentUnavailable,
	CategoryRegionRestricted:   ErrRegionRestricted,
	CategoryArtifactMissing:    ErrArtifactMissing,
	CategoryParseError:         ErrParse,
	CategoryUnknown:            ErrUnknown,
}

// ClassifiedError is a failed request reduced to a single category.
// RawDetails keeps the extractor diagnostics verbatim for operators.
type ClassifiedError struct {
	Category   Category
	Message    string
	RawDetails string
	ExitCode   *int
	Err        error
}

func (e *ClassifiedError) Error() string {
	msg := string(e.Category) + ": " + e.Message
	if e.ExitCode != nil {
		msg += " (exit code " + strconv.Itoa(*e.ExitCode) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the category sentinel and the underlying cause, so both
// errors.Is(err, ErrPrivateContent) and errors.Is(err, cause) hold.
func (e *ClassifiedError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := categorySentinels[e.Category]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewClassifiedError creates a new ClassifiedError without an exit code.
func NewClassifiedError(category Category, message string, err error) *ClassifiedError {
	return &ClassifiedError{
		Category: category,
		Message:  message,
		Err:      err,
	}
}

// WithExitCode returns a copy of e carrying the process exit code.
func (e *ClassifiedError) WithExitCode(code int) *ClassifiedError {
	c := *e
	c.ExitCode = &code
	return &c
}

// WithDetails returns a copy of e carrying raw diagnostics.
func (e *ClassifiedError) WithDetails(details string) *ClassifiedError {
	c := *e
	c.RawDetails = details
	return &c
}

// AsClassified extracts a ClassifiedError from err, if present.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
