// Package plkgerr defines the typed error kinds that cross stage
// boundaries in the PLKG pipeline.
package plkgerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the abstract error kinds from the PLKG error handling
// design: some are fatal at setup, some are local and absorbed by the
// surrounding stage, some are advisory only.
type Kind int

const (
	// KindSerialUnavailable means the radio link could not be opened or
	// was lost mid-session. Fatal at setup; at runtime it aborts the
	// session for the affected endpoint.
	KindSerialUnavailable Kind = iota
	// KindMalformedFrame means a line could not be decoded as a CSI
	// frame or recognized public message. The line is dropped.
	KindMalformedFrame
	// KindInsufficientData means the aggregator saw fewer than the
	// required number of frames at the modal length.
	KindInsufficientData
	// KindNoValidSubcarriers means every configured subcarrier range
	// fell outside the observed frame width.
	KindNoValidSubcarriers
	// KindQuantizerUnderflow means the channel mean vector was too
	// short to sample k_main anchors with the configured neighborhood.
	KindQuantizerUnderflow
	// KindReconciliationTimeout means a Cascade sub-step exceeded its
	// deadline; counted but not fatal.
	KindReconciliationTimeout
	// KindDecryptionFailure means an AEAD tag check failed: the
	// expected outcome for the eavesdropper, a failure signal for the
	// responder.
	KindDecryptionFailure
)

func (k Kind) String() string {
	switch k {
	case KindSerialUnavailable:
		return "serial_unavailable"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindInsufficientData:
		return "insufficient_data"
	case KindNoValidSubcarriers:
		return "no_valid_subcarriers"
	case KindQuantizerUnderflow:
		return "quantizer_underflow"
	case KindReconciliationTimeout:
		return "reconciliation_timeout"
	case KindDecryptionFailure:
		return "decryption_failure"
	default:
		return "unknown"
	}
}

// Error is a typed PLKG error carrying its Kind, the stage that raised it,
// and an optional underlying cause.
type Error struct {
	Kind  Kind
	Stage string // e.g. "aggregator", "quantizer", "cascade:pass3"
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "plkg error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New builds an Error for the given kind and stage, wrapping cause (which
// may be nil).
func New(kind Kind, stage string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Cause: cause}
}

// Is reports whether err is a PLKG Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Classify extracts the Kind and stage from err, if it is a PLKG Error.
func Classify(err error) (kind Kind, stage string, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, e.Stage, true
	}
	return 0, "", false
}
