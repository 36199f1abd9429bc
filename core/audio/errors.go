package audio

import "errors"

// Capture initialization failures are surfaced as distinguishable causes so
// callers can tell the user what to fix instead of showing a generic failure.
var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrNoDevice         = errors.New("no microphone device found")
	ErrDeviceBusy       = errors.New("microphone device is busy")
)
