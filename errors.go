package sshkex

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrorCode categorizes the kind of failure a state machine can report, matching
// the caller-visible taxonomy: protocol violations are fatal to the connection,
// caller misuse is a programmer error.
type ErrorCode byte

const (
	// ErrCodeUnknown represents an unclassified error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeProtocolViolation means the peer sent a message illegal in the current state,
	// or syntactically valid but disallowed content. Fatal: drop the connection.
	ErrCodeProtocolViolation

	// ErrCodeUnexpectedMessage is the KEX-local variant of ErrCodeProtocolViolation.
	ErrCodeUnexpectedMessage

	// ErrCodeNegotiationFailure means no common algorithm could be found. Fatal.
	ErrCodeNegotiationFailure

	// ErrCodeCryptoFailure means signature verification or key derivation failed. Fatal.
	ErrCodeCryptoFailure

	// ErrCodeCallerMisuse means the embedding layer called an API in a state that forbids it.
	ErrCodeCallerMisuse
)

// String returns the string representation of the ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeProtocolViolation:
		return "protocol_violation"
	case ErrCodeUnexpectedMessage:
		return "unexpected_message"
	case ErrCodeNegotiationFailure:
		return "negotiation_failure"
	case ErrCodeCryptoFailure:
		return "crypto_failure"
	case ErrCodeCallerMisuse:
		return "caller_misuse"
	default:
		return "unknown_error"
	}
}

// Error implements the error interface for ErrorCode directly, so callers can
// match on the bare code with errors.Is without unwrapping to *Error first.
func (c ErrorCode) Error() string { return c.String() }

// Is implements errors.Is for ErrorCode.
func (c ErrorCode) Is(target error) bool {
	var code ErrorCode
	if errors.As(target, &code) {
		return c == code
	}

	var e *Error
	if errors.As(target, &e) {
		return c == e.Code
	}

	return false
}

// New creates a new *Error with this code, the given message, and any wrapped causes.
func (c ErrorCode) New(message string, errs ...error) *Error {
	if message == "" {
		message = strings.ReplaceAll(c.String(), "_", " ")
	}

	return &Error{
		Code:    c,
		Message: message,
		Err:     errors.Join(errs...),
	}
}

// Error is the concrete error type returned by every state machine method in this
// module. By convention Error() returns only the concise message; the cause chain
// is reached through Unwrap or printed with fmt's "%+v" verb.
type Error struct {
	Err     error
	Message string
	Code    ErrorCode
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Unwrap implements errors.Unwrap.
func (e *Error) Unwrap() error { return e.Err }

// Is implements errors.Is against either an ErrorCode or another *Error.
func (e *Error) Is(target error) bool {
	var code ErrorCode
	if errors.As(target, &code) {
		return e.Code == code
	}

	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}

	return false
}

// LogValue implements slog.LogValuer so structured loggers can print the code and
// cause without the caller needing to know this type.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("code", int(e.Code)),
		slog.String("code_name", e.Code.String()),
		slog.String("message", e.Message),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}

	return slog.GroupValue(attrs...)
}

// Format implements fmt.Formatter. "%+v" walks and prints the full wrapped chain;
// every other verb prints only the concise message.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			e.formatV(f)
			return
		}

		fallthrough
	case 's':
		_, _ = io.WriteString(f, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", e.Error())
	default:
		_, _ = io.WriteString(f, e.Error())
	}
}

func (e *Error) formatV(f fmt.State) {
	_, _ = fmt.Fprintf(f, "code=%d(%s)", e.Code, e.Code.String())
	if e.Message != "" {
		_, _ = fmt.Fprintf(f, " message=%q", e.Message)
	}

	if e.Err != nil {
		printCauseChain(f, e.Err, 0)
	}
}

func printCauseChain(f fmt.State, err error, depth int) {
	if err == nil {
		return
	}

	prefix := strings.Repeat("  ", depth)
	_, _ = fmt.Fprintf(f, "\n%s↳ %v", prefix, err)

	var multi interface{ Unwrap() []error }
	if errors.As(err, &multi) {
		for _, child := range multi.Unwrap() {
			printCauseChain(f, child, depth+1)
		}

		return
	}

	var single interface{ Unwrap() error }
	if errors.As(err, &single) {
		printCauseChain(f, single.Unwrap(), depth+1)
	}
}

// CallerError is the panic value raised for ErrCodeCallerMisuse conditions: invariant-
// violating API misuse by the embedder (e.g. sending NEWKEYS from Idle) is a
// programmer error, not a connection-level fault, and may legitimately terminate
// the process rather than just the connection. Recoverable with recover() by an
// embedder that wants to downgrade it to a connection teardown instead.
type CallerError struct {
	*Error
}

func newCallerError(message string) *CallerError {
	return &CallerError{Error: ErrCodeCallerMisuse.New(message)}
}

// NewCallerError lets other packages in this module (kex, userauth) raise the
// same CallerError shape for their own invariant violations.
func NewCallerError(message string) *CallerError {
	return newCallerError(message)
}
