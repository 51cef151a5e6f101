package bybit

import "fmt"

// ErrorKind classifies client failures so callers can branch on transport
// problems vs exchange rejections without string matching.
type ErrorKind int

const (
	// ErrNetwork covers transport failures: dial, timeout, broken body.
	ErrNetwork ErrorKind = iota
	// ErrAPI covers responses the exchange rejected (retCode != 0).
	ErrAPI
	// ErrParse covers bodies that could not be decoded into the expected shape.
	ErrParse
	// ErrAuth covers rejected or missing credentials.
	ErrAuth
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNetwork:
		return "network"
	case ErrAPI:
		return "api"
	case ErrParse:
		return "parse"
	case ErrAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every client operation.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bybit %s error: %s", e.Kind, e.Message)
}

func errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
