package errors

import (
	"errors"
	"fmt"
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies bridge failures
type Kind int

const (
	KindUnknown Kind = iota
	KindLengthMismatch
	KindCrcMismatch
	KindException
	KindUnknownFrameLength
	KindPortOpenFailure
	KindWatchdogTimeout
	KindDeviceIO
	KindConfig
	KindPublish
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	KindLengthMismatch:     "LengthMismatch",
	KindCrcMismatch:        "CrcMismatch",
	KindException:          "Exception",
	KindUnknownFrameLength: "UnknownFrameLength",
	KindPortOpenFailure:    "PortOpenFailure",
	KindWatchdogTimeout:    "WatchdogTimeout",
	KindDeviceIO:           "DeviceIO",
	KindConfig:             "Config",
	KindPublish:            "Publish",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Severity returns the default severity for errors of this kind
func (k Kind) Severity() ErrorSeverity {
	switch k {
	case KindLengthMismatch, KindCrcMismatch, KindException, KindUnknownFrameLength:
		return SeverityWarning
	case KindPortOpenFailure, KindConfig:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// Code returns the diagnostic code published with health reports
func (k Kind) Code() int {
	switch k {
	case KindConfig:
		return 1
	case KindPortOpenFailure:
		return 2
	case KindDeviceIO:
		return 3
	case KindPublish:
		return 4
	case KindLengthMismatch, KindCrcMismatch, KindException, KindUnknownFrameLength:
		return 5
	case KindWatchdogTimeout:
		return 6
	default:
		return 99
	}
}

// BridgeError is the base error type for all bridge errors
type BridgeError struct {
	Kind     Kind
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code for MQTT
}

// New creates a BridgeError with the kind's default severity and code
func New(kind Kind, op string, err error) *BridgeError {
	return &BridgeError{
		Kind:     kind,
		Op:       op,
		Err:      err,
		Severity: kind.Severity(),
		Code:     kind.Code(),
	}
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s %s: %v", e.Severity, e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s %s", e.Severity, e.Kind, e.Op)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// ErrorKind returns the error classification
func (e *BridgeError) ErrorKind() Kind {
	return e.Kind
}

// Is matches the kind sentinels below, so errors.Is(err, ErrCrcMismatch) works
// for any BridgeError or FrameError of that kind.
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels
var (
	ErrLengthMismatch     = &BridgeError{Kind: KindLengthMismatch}
	ErrCrcMismatch        = &BridgeError{Kind: KindCrcMismatch}
	ErrException          = &BridgeError{Kind: KindException}
	ErrUnknownFrameLength = &BridgeError{Kind: KindUnknownFrameLength}
	ErrPortOpenFailure    = &BridgeError{Kind: KindPortOpenFailure}
	ErrWatchdogTimeout    = &BridgeError{Kind: KindWatchdogTimeout}
	ErrDeviceIO           = &BridgeError{Kind: KindDeviceIO}
)

// FrameError represents a received frame that failed validation or dispatch
type FrameError struct {
	BridgeError
	Length int
	Raw    []byte
}

// NewFrameError creates a frame error for the given raw bytes
func NewFrameError(kind Kind, err error, raw []byte) *FrameError {
	return &FrameError{
		BridgeError: *New(kind, "frame", err),
		Length:      len(raw),
		Raw:         raw,
	}
}

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s (%d bytes): %v", e.Severity, e.Kind, e.Length, e.Err)
	}
	return fmt.Sprintf("[%s] %s (%d bytes)", e.Severity, e.Kind, e.Length)
}

// KindOf extracts the classification from any error in the chain
func KindOf(err error) Kind {
	var k interface{ ErrorKind() Kind }
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}

// IsRecoverable returns true if the bus loop can carry on after err
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	switch KindOf(err) {
	case KindPortOpenFailure, KindDeviceIO, KindConfig:
		return false
	default:
		return true
	}
}

// GetDiagnosticCode extracts the diagnostic code from an error
func GetDiagnosticCode(err error) int {
	if err == nil {
		return 0
	}
	var be interface{ ErrorKind() Kind }
	if errors.As(err, &be) {
		return be.ErrorKind().Code()
	}
	return 99 // Generic error code
}
