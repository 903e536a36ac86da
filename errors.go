package sponge

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("sponge: session not found")

	// ErrNodeNotFound is returned when a node ID does not exist.
	ErrNodeNotFound = errors.New("sponge: node not found")

	// ErrNuggetNotFound is returned when a nugget ID does not exist.
	ErrNuggetNotFound = errors.New("sponge: nugget not found")

	// ErrUnsupportedFormat is returned for unrecognized upload formats.
	ErrUnsupportedFormat = errors.New("sponge: unsupported document format")

	// ErrFileTooLarge is returned when an upload exceeds the configured cap.
	ErrFileTooLarge = errors.New("sponge: file too large")

	// ErrEmptyMessage is returned when a chat turn carries no text.
	ErrEmptyMessage = errors.New("sponge: empty message")

	// ErrInvalidStatus is returned for an unrecognized nugget status value.
	ErrInvalidStatus = errors.New("sponge: invalid nugget status")

	// ErrInvalidFeedback is returned for an unrecognized feedback value.
	ErrInvalidFeedback = errors.New("sponge: invalid feedback value")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("sponge: invalid configuration")
)
