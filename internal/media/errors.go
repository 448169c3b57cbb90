package media

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the pipeline operation a publication failure came
// from. Codes are stable: they are persisted with the record and consumed by
// operator tooling, so values never change meaning.
type ErrorCode int

const (
	ErrCodeNone               ErrorCode = -1
	ErrCodeUnknown            ErrorCode = 0
	ErrCodeInvalidPackageType ErrorCode = 1
	ErrCodeCopy               ErrorCode = 2
	ErrCodeUnlink             ErrorCode = 3
	ErrCodeExtract            ErrorCode = 4
	ErrCodeValidation         ErrorCode = 5
	ErrCodeCreatePublicDir    ErrorCode = 6
	ErrCodeSavePackageData    ErrorCode = 7
	ErrCodeSaveTimecode       ErrorCode = 8
	ErrCodeMediaUpload        ErrorCode = 9
	ErrCodeMediaConfigure     ErrorCode = 10
	ErrCodeScanForImages      ErrorCode = 11
	ErrCodeCleanDirectory     ErrorCode = 13
	ErrCodePackageNotFound    ErrorCode = 14
	ErrCodeTransition         ErrorCode = 15
	ErrCodeInvalidConfig      ErrorCode = 16
	ErrCodeGenerateThumb      ErrorCode = 17
	ErrCodeGetMetadata        ErrorCode = 18
	ErrCodeCopyThumb          ErrorCode = 19
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:               "none",
	ErrCodeUnknown:            "unknown",
	ErrCodeInvalidPackageType: "invalid package type",
	ErrCodeCopy:               "copy",
	ErrCodeUnlink:             "remove original",
	ErrCodeExtract:            "extract",
	ErrCodeValidation:         "validation",
	ErrCodeCreatePublicDir:    "create public directory",
	ErrCodeSavePackageData:    "save package data",
	ErrCodeSaveTimecode:       "save timecodes",
	ErrCodeMediaUpload:        "media upload",
	ErrCodeMediaConfigure:     "media configure",
	ErrCodeScanForImages:      "scan for images",
	ErrCodeCleanDirectory:     "clean directory",
	ErrCodePackageNotFound:    "package not found",
	ErrCodeTransition:         "transition",
	ErrCodeInvalidConfig:      "invalid configuration",
	ErrCodeGenerateThumb:      "generate thumbnail",
	ErrCodeGetMetadata:        "get metadata",
	ErrCodeCopyThumb:          "copy thumbnail",
}

// String returns a short operator-facing label for the code.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", int(c))
}

// PublishError tags a pipeline failure with the error code that later
// distinguishes which stage broke. The wrapped cause is preserved for
// errors.Is / errors.As.
type PublishError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewPublishError builds a coded publication failure wrapping cause.
func NewPublishError(code ErrorCode, message string, cause error) *PublishError {
	return &PublishError{Code: code, Message: message, Err: cause}
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PublishError) Unwrap() error { return e.Err }

// CodeOf extracts the publication error code from an error chain,
// ErrCodeUnknown when the chain carries no PublishError.
func CodeOf(err error) ErrorCode {
	var perr *PublishError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ErrCodeUnknown
}
