package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/apierr"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrSegment
	ErrScript
	ErrSpeech
	ErrAudio
	ErrStorage
	ErrConfig
	ErrNetwork
	ErrCanceled
	ErrUnknown
)

// ErrNoSections is returned when a document yields nothing to narrate.
var ErrNoSections = errors.New("document has no sections")

// Error classifies a run failure by the stage that produced it.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrSegment:
		return "Segment"
	case ErrScript:
		return "Script"
	case ErrSpeech:
		return "Speech"
	case ErrAudio:
		return "Audio"
	case ErrStorage:
		return "Storage"
	case ErrConfig:
		return "Config"
	case ErrNetwork:
		return "Network"
	case ErrCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

// Advice returns a hint for the operator that matches the error class.
func Advice(err error) string {
	if errors.Is(err, apierr.ErrAuthFailed) {
		return "Check the LLM API key and provider settings"
	}

	var pErr *Error
	if !errors.As(err, &pErr) {
		return "Review the error details and the relevant configuration"
	}

	switch pErr.Type {
	case ErrValidation:
		return "Check the article file; it must contain visible text"
	case ErrSegment:
		return "The article could not be parsed as HTML"
	case ErrScript:
		return "Check LLM connectivity and the configured model; try a smaller SCRIPT_BATCH_MAX_CHARS"
	case ErrSpeech, ErrNetwork:
		return "Make sure the VOICEVOX engine is running and VOICEVOX_URL points at it"
	case ErrAudio:
		return "The speech engine returned audio that could not be read"
	case ErrStorage:
		return "Ensure DATA_DIR exists and is writable"
	case ErrConfig:
		return "Check environment variables and the .env file"
	case ErrCanceled:
		return "The run was canceled before it finished"
	default:
		return "Review the error details and the relevant configuration"
	}
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var pErr *Error
	if !errors.As(err, &pErr) {
		return 1
	}
	switch pErr.Type {
	case ErrValidation, ErrConfig:
		return 2
	case ErrCanceled:
		return 130
	default:
		return 1
	}
}

// SafeExecute runs fn and converts a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
