package scans

import (
	"errors"
	"fmt"
)

// Kind classifies a scan lifecycle failure for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindValidation
	KindDuplicate
	KindCloneFailed
	KindScanFailed
	KindExtractFailed
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate_project"
	case KindCloneFailed:
		return "clone_failed"
	case KindScanFailed:
		return "scan_failed"
	case KindExtractFailed:
		return "extract_failed"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// User-facing messages.
const (
	MsgMissingHeader    = "Missing required header: X-Sonar-Token"
	MsgInvalidToken     = "Invalid SonarQube token in header."
	MsgMissingKey       = "Missing required field: project_key"
	MsgMissingName      = "Missing required field: project_name"
	MsgInvalidPayload   = "Invalid JSON payload. Expecting 'git_url' or 'code'."
	MsgInvalidRequest   = "Invalid request. Expecting file upload or JSON payload (git_url or code)."
	MsgAmbiguousSource  = "Ambiguous request. Provide exactly one of 'git_url', 'code' or 'file'."
	MsgTooManyFiles     = "Only one zip file is allowed."
	MsgNoFileSelected   = "No file selected or filename is empty"
	MsgCloneFailed      = "Failed to clone git repository"
	MsgScanFailed       = "SonarScanner analysis failed."
	MsgExtractFailed    = "Failed to extract archive"
	MsgReportNotFound   = "That report is not existed"
	MsgStillProcessing  = "Analysis is still processing. This report may be incomplete."
	MsgUnexpectedServer = "An unexpected server error occurred"
)

// Error is the lifecycle error. Stdout and Stderr carry raw process output
// for 500-class kinds only.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test errors.Is(err, ErrTooManyFiles).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrDuplicate      = &Error{Kind: KindDuplicate}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrTooManyFiles   = &Error{Kind: KindValidation, Message: MsgTooManyFiles}
	ErrNoFileSelected = &Error{Kind: KindValidation, Message: MsgNoFileSelected}
)

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func Duplicate(key string) *Error {
	return &Error{
		Kind:    KindDuplicate,
		Message: fmt.Sprintf("Project '%s' already exists. Please use a different project_key.", key),
	}
}

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func CloneFailed(stdout, stderr string, err error) *Error {
	details := stderr
	if details == "" {
		details = stdout
	}
	return &Error{Kind: KindCloneFailed, Message: MsgCloneFailed, Details: details, Stdout: stdout, Stderr: stderr, Err: err}
}

func ScanFailed(stdout, stderr string, err error) *Error {
	return &Error{Kind: KindScanFailed, Message: MsgScanFailed, Stdout: stdout, Stderr: stderr, Err: err}
}

func ExtractFailed(err error) *Error {
	e := &Error{Kind: KindExtractFailed, Message: MsgExtractFailed, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// KindOf returns the kind of err, or KindInternal when err is not a lifecycle error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
