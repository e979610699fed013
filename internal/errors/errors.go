// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors provides structured, Kind-tagged errors for anything that
// crosses a component boundary in the IDS/IPS pipeline: configuration
// loading, capture-interface setup, firewall installs, notification
// delivery. Per-packet errors inside the analyzer's hot loop are logged,
// not propagated as errors, by design (see internal/analyzer).
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for callers that want to branch on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindValidation
	KindCapture
	KindFirewall
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindCapture:
		return "capture"
	case KindFirewall:
		return "firewall"
	case KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Error is a structured error carrying a Kind and an optional wrapped cause.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a formatted Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: cause}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
