// Package frozenerr implements the typed error taxonomy the core uses to
// report failures across the Collection Store, Data Store, and wire layers.
// It replaces throw/catch control flow with a tagged error enum: every
// failure the core can produce carries a Code that callers test with CodeOf
// or Is, instead of parsing error strings.
package frozenerr

// Code categorizes a core error programmatically.
type Code string

const (
	CodeNotOpen           Code = "NOT_OPEN"
	CodeAlreadyOpen       Code = "ALREADY_OPEN"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeNotFound          Code = "NOT_FOUND"
	CodeVersionExists     Code = "VERSION_EXISTS"
	CodeVersionNotNewer   Code = "VERSION_NOT_NEWER"
	CodeItemTooLarge      Code = "ITEM_TOO_LARGE"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeFrameTooLarge     Code = "FRAME_TOO_LARGE"
	CodeMalformedFrame    Code = "MALFORMED_FRAME"
	CodeIoError           Code = "IO_ERROR"
	CodeRemoteUnavailable Code = "REMOTE_UNAVAILABLE"
)

// baseError is a chainable error: a cause, a message, a code, and lazily
// allocated structured details for logging.
type baseError struct {
	cause   error
	message string
	code    Code
	details map[string]any
}

// New creates a core error with the given code and message.
func New(code Code, msg string) *baseError {
	return &baseError{code: code, message: msg}
}

// Wrap creates a core error that chains an underlying cause.
func Wrap(err error, code Code, msg string) *baseError {
	return &baseError{cause: err, code: code, message: msg}
}

// WithDetail attaches contextual information (collection name, version,
// segment index, ...) used by structured logging at the call site.
func (e *baseError) WithDetail(key string, value any) *baseError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Code() Code { return e.code }

func (e *baseError) Details() map[string]any { return e.details }

// CodeOf extracts the Code carried by err, if any, walking the Unwrap chain.
func CodeOf(err error) (Code, bool) {
	for err != nil {
		if be, ok := err.(*baseError); ok {
			return be.code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// Is reports whether err (or anything in its Unwrap chain) carries code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func NotOpen(msg string) *baseError             { return New(CodeNotOpen, msg) }
func AlreadyOpen(msg string) *baseError         { return New(CodeAlreadyOpen, msg) }
func AlreadyExists(msg string) *baseError       { return New(CodeAlreadyExists, msg) }
func NotFound(msg string) *baseError            { return New(CodeNotFound, msg) }
func VersionExists(msg string) *baseError       { return New(CodeVersionExists, msg) }
func VersionNotNewer(msg string) *baseError     { return New(CodeVersionNotNewer, msg) }
func ItemTooLarge(msg string) *baseError        { return New(CodeItemTooLarge, msg) }
func InvalidRequest(msg string) *baseError      { return New(CodeInvalidRequest, msg) }
func FrameTooLarge(msg string) *baseError       { return New(CodeFrameTooLarge, msg) }
func MalformedFrame(msg string) *baseError      { return New(CodeMalformedFrame, msg) }
func IoError(err error, msg string) *baseError  { return Wrap(err, CodeIoError, msg) }
func RemoteUnavailable(msg string) *baseError   { return New(CodeRemoteUnavailable, msg) }
