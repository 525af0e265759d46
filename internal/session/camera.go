package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// Camera acquisition failure taxonomy. Camera implementations return
// errors wrapping one of these sentinels; anything else is classified as
// device-not-found.
var (
	ErrPermissionDenied       = errors.New("camera permission denied")
	ErrDeviceNotFound         = errors.New("camera device not found")
	ErrDeviceBusy             = errors.New("camera device busy")
	ErrUnsupportedConstraints = errors.New("camera constraints unsupported")
)

// ErrNoFrame is returned by a camera handle when no frame is available
// yet. The scan loop treats it as a transient error.
var ErrNoFrame = errors.New("no camera frame available")

// ErrorReason is the error sub-reason surfaced to the caller.
type ErrorReason string

const (
	ReasonNone                   ErrorReason = ""
	ReasonPermissionDenied       ErrorReason = "permission_denied"
	ReasonDeviceNotFound         ErrorReason = "device_not_found"
	ReasonDeviceBusy             ErrorReason = "device_busy"
	ReasonUnsupportedConstraints ErrorReason = "unsupported_constraints"
	ReasonScanTimeout            ErrorReason = "scan_timeout"
	ReasonTransientDecoder       ErrorReason = "transient_decoder_error"
)

// ClassifyCameraError maps a camera acquisition error onto the fixed
// taxonomy. The mapping is deterministic: unknown errors become
// device-not-found rather than a varying guess.
func ClassifyCameraError(err error) ErrorReason {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrDeviceBusy):
		return ReasonDeviceBusy
	case errors.Is(err, ErrUnsupportedConstraints):
		return ReasonUnsupportedConstraints
	default:
		return ReasonDeviceNotFound
	}
}

// CameraHandle is one live media stream. It is exclusively owned by the
// session that opened it and never shared.
type CameraHandle interface {
	// Frame returns the most recent frame snapshot.
	Frame(ctx context.Context) (image.Image, error)
	// Close releases the stream. Safe to call more than once.
	Close() error
}

// CameraDevice acquires camera handles.
type CameraDevice interface {
	RequestPermission(ctx context.Context) error
	Open(ctx context.Context) (CameraHandle, error)
}

// PushCamera is a CameraDevice fed by an external frame source: remote
// clients push frame snapshots and the session loop samples the latest
// one. At most one handle can be open at a time; a second Open fails with
// ErrDeviceBusy, mirroring a physical device already in use.
type PushCamera struct {
	mu    sync.Mutex
	frame image.Image
	open  bool
}

// NewPushCamera creates a push-fed camera device.
func NewPushCamera() *PushCamera {
	return &PushCamera{}
}

// Push replaces the current frame with a newer snapshot.
func (c *PushCamera) Push(frame image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = frame
}

// RequestPermission always succeeds: frames are pushed voluntarily.
func (c *PushCamera) RequestPermission(ctx context.Context) error {
	return nil
}

// Open acquires the single handle for this device.
func (c *PushCamera) Open(ctx context.Context) (CameraHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil, fmt.Errorf("push camera already open: %w", ErrDeviceBusy)
	}
	c.open = true
	return &pushHandle{camera: c}, nil
}

type pushHandle struct {
	camera *PushCamera
	closed bool
	mu     sync.Mutex
}

func (h *pushHandle) Frame(ctx context.Context) (image.Image, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, ErrNoFrame
	}

	h.camera.mu.Lock()
	frame := h.camera.frame
	h.camera.mu.Unlock()
	if frame == nil {
		return nil, ErrNoFrame
	}
	return frame, nil
}

func (h *pushHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	h.camera.mu.Lock()
	h.camera.open = false
	h.camera.mu.Unlock()
	return nil
}
