package gdpr

import "errors"

var (
	ErrRequestNotFound   = errors.New("erasure request not found")
	ErrJobNotFound       = errors.New("retention job not found")
	ErrPolicyNotFound    = errors.New("retention policy not found")
	ErrExportNotFound    = errors.New("export request not found")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrInvalidMethod     = errors.New("unsupported erasure method")
	ErrInvalidScope      = errors.New("unsupported export scope")
	ErrInvalidPolicyType = errors.New("unsupported retention policy type")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrExportExpired     = errors.New("export has expired")
)
