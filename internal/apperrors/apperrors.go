// Package apperrors defines the error taxonomy shared by every layer of the
// terminal core (spec §7). Each Kind is a sentinel comparable with
// errors.Is; Error wraps an optional underlying cause without leaking raw
// buffers, passwords, or full file paths into user-facing text.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure from spec.md §7.
type Kind int

const (
	// Transport
	KindConnectFailed Kind = iota
	KindConnectTimeout
	KindReadTimeout
	KindWriteFailed
	KindCanceled
	KindTLSCertInvalid
	KindTLSHostnameMismatch
	KindTLSHandshakeFailed

	// Telnet
	KindNegotiationTimeout
	KindNegotiationLoop
	KindMalformedIAC
	KindUnknownOption

	// Protocol
	KindUnsupportedProtocol
	KindProtocolMismatch
	KindProtocolSwitchFailed
	KindBufferOverflow
	KindInvalidCursor
	KindFieldAttributeError
	KindIncompleteData
	KindUnknownCommand

	// Field
	KindCursorProtected
	KindNumericOnly
	KindFieldExitRequired
	KindMandatoryEntry
	KindFieldFull

	// Config
	KindInvalidProtocolMode
	KindInvalidTerminalType
	KindIncompatibleProtocolTerminal
)

func (k Kind) String() string {
	switch k {
	case KindConnectFailed:
		return "ConnectFailed"
	case KindConnectTimeout:
		return "ConnectTimeout"
	case KindReadTimeout:
		return "ReadTimeout"
	case KindWriteFailed:
		return "WriteFailed"
	case KindCanceled:
		return "Canceled"
	case KindTLSCertInvalid:
		return "TlsError.CertInvalid"
	case KindTLSHostnameMismatch:
		return "TlsError.HostnameMismatch"
	case KindTLSHandshakeFailed:
		return "TlsError.HandshakeFailed"
	case KindNegotiationTimeout:
		return "NegotiationTimeout"
	case KindNegotiationLoop:
		return "NegotiationLoop"
	case KindMalformedIAC:
		return "MalformedIAC"
	case KindUnknownOption:
		return "UnknownOption"
	case KindUnsupportedProtocol:
		return "UnsupportedProtocol"
	case KindProtocolMismatch:
		return "ProtocolMismatch"
	case KindProtocolSwitchFailed:
		return "ProtocolSwitchFailed"
	case KindBufferOverflow:
		return "BufferOverflow"
	case KindInvalidCursor:
		return "InvalidCursor"
	case KindFieldAttributeError:
		return "FieldAttributeError"
	case KindIncompleteData:
		return "IncompleteData"
	case KindUnknownCommand:
		return "UnknownCommand"
	case KindCursorProtected:
		return "CursorProtected"
	case KindNumericOnly:
		return "NumericOnly"
	case KindFieldExitRequired:
		return "FieldExitRequired"
	case KindMandatoryEntry:
		return "MandatoryEntry"
	case KindFieldFull:
		return "FieldFull"
	case KindInvalidProtocolMode:
		return "InvalidProtocolMode"
	case KindInvalidTerminalType:
		return "InvalidTerminalType"
	case KindIncompatibleProtocolTerminal:
		return "IncompatibleProtocolTerminal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is(err, apperrors.Kind) style comparisons against a
// bare Kind value wrapped in an *Error with no message/cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New creates an Error of the given kind with a sanitized message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Of returns the Kind carried by err, and whether err is one of ours.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Fatal reports whether a protocol error kind tears down the session rather
// than just generating a DSNR and resuming at the next packet boundary.
func Fatal(k Kind) bool {
	switch k {
	case KindUnknownCommand, KindMalformedIAC, KindNegotiationTimeout, KindNegotiationLoop:
		return true
	case KindBufferOverflow, KindInvalidCursor, KindFieldAttributeError, KindIncompleteData:
		return false
	default:
		return false
	}
}
