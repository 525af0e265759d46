// Package session owns the scanner lifecycle for one scanning
// interaction: camera acquisition, mode switching, the periodic live
// detection loop, timeouts and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/pipeline"
)

// State is the scanner session lifecycle state.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateInitializing         State = "initializing"
	StateActive               State = "active"
	StateSwitchingCamera      State = "switching_camera"
	StateEmergencyStopped     State = "emergency_stopped"
	StateError                State = "error"
)

// Mode selects where images come from. Orthogonal to State.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeUpload Mode = "upload"
)

var (
	// ErrInvalidTransition is returned for operations not permitted in
	// the session's current state or mode.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrSessionStopped is returned when an operation was interrupted by
	// a stop or emergency stop.
	ErrSessionStopped = errors.New("session stopped")
)

// Detector runs the detection pipeline over one image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*pipeline.Result, error)
}

const (
	defaultScanInterval  = 2 * time.Second
	defaultErrorInterval = 3 * time.Second
	defaultScanTimeout   = 30 * time.Second
)

// Config configures a new session.
type Config struct {
	Mode     Mode
	Camera   CameraDevice
	Detector Detector
	Logger   *slog.Logger

	// ScanInterval is the live-loop base interval; ErrorInterval is used
	// after a pipeline error. ScanTimeout bounds how long the camera is
	// held with no accepted identifier.
	ScanInterval  time.Duration
	ErrorInterval time.Duration
	ScanTimeout   time.Duration

	// OnResult is invoked once when an identifier is accepted.
	// OnStateChange is invoked on every state transition, for display
	// only. Neither may call back into the session.
	OnResult      func(*pipeline.Result)
	OnStateChange func(State)
}

// Session is the stateful owner of one scanning interaction. All fields
// are guarded by mu; timers fire on their own goroutines and re-check
// state and generation before acting (check-before-use, no cancellation
// of in-flight decode calls).
type Session struct {
	id       string
	camera   CameraDevice
	detector Detector
	logger   *slog.Logger

	scanInterval  time.Duration
	errorInterval time.Duration
	scanTimeout   time.Duration
	onResult      func(*pipeline.Result)
	onStateChange func(State)

	mu             sync.Mutex
	state          State
	mode           Mode
	handle         CameraHandle
	loopTimer      *time.Timer
	timeoutTimer   *time.Timer
	generation     uint64
	stopProcessing bool
	inFlight       bool
	errorCount     int
	lastError      ErrorReason
	result         *pipeline.Result
}

// New creates a session in the Idle state.
func New(cfg Config) *Session {
	s := &Session{
		id:            uuid.NewString(),
		camera:        cfg.Camera,
		detector:      cfg.Detector,
		logger:        cfg.Logger,
		scanInterval:  cfg.ScanInterval,
		errorInterval: cfg.ErrorInterval,
		scanTimeout:   cfg.ScanTimeout,
		onResult:      cfg.OnResult,
		onStateChange: cfg.OnStateChange,
		state:         StateIdle,
		mode:          cfg.Mode,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.mode == "" {
		s.mode = ModeCamera
	}
	if s.scanInterval <= 0 {
		s.scanInterval = defaultScanInterval
	}
	if s.errorInterval <= 0 {
		s.errorInterval = defaultErrorInterval
	}
	if s.scanTimeout <= 0 {
		s.scanTimeout = defaultScanTimeout
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the current image-source mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Result returns the accepted identifier, or nil while scanning.
func (s *Session) Result() *pipeline.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// LastError returns the most recent error reason.
func (s *Session) LastError() ErrorReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// ErrorCount returns the number of transient pipeline errors seen by the
// live loop since the session last became Active.
func (s *Session) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// Start acquires camera permission and the camera handle, then enters the
// Active state and begins the periodic detection loop. Camera acquisition
// failures are classified, put the session in the Error state and are not
// retried automatically.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeCamera {
		s.mu.Unlock()
		return fmt.Errorf("%w: start requires camera mode", ErrInvalidTransition)
	}
	if s.state != StateIdle && s.state != StateError {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, s.state)
	}
	s.setStateLocked(StateRequestingPermission)
	s.mu.Unlock()

	if err := s.camera.RequestPermission(ctx); err != nil {
		return s.failAcquisition(StateRequestingPermission, err)
	}

	s.mu.Lock()
	if s.state != StateRequestingPermission { // emergency stop raced us
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.setStateLocked(StateInitializing)
	s.mu.Unlock()

	return s.acquireAndActivate(ctx, StateInitializing)
}

// acquireAndActivate opens the camera and, if the session is still in the
// expected state, installs the handle and starts the loop and timeout.
func (s *Session) acquireAndActivate(ctx context.Context, expect State) error {
	handle, err := s.camera.Open(ctx)
	if err != nil {
		return s.failAcquisition(expect, err)
	}

	s.mu.Lock()
	if s.state != expect { // stopped while opening; never keep the handle
		s.mu.Unlock()
		handle.Close()
		return ErrSessionStopped
	}
	s.handle = handle
	s.stopProcessing = false
	s.inFlight = false
	s.errorCount = 0
	s.result = nil
	s.lastError = ReasonNone
	s.setStateLocked(StateActive)
	gen := s.generation
	s.timeoutTimer = time.AfterFunc(s.scanTimeout, func() { s.onTimeout(gen) })
	s.scheduleTickLocked(s.scanInterval)
	s.mu.Unlock()

	s.logger.Info("scan session active", "session_id", s.id, "timeout", s.scanTimeout)
	return nil
}

// failAcquisition records a classified camera error if no other transition
// beat us to it.
func (s *Session) failAcquisition(expect State, err error) error {
	reason := ClassifyCameraError(err)

	s.mu.Lock()
	if s.state == expect {
		s.teardownLocked()
		s.lastError = reason
		s.setStateLocked(StateError)
	}
	s.mu.Unlock()

	s.logger.Warn("camera acquisition failed", "session_id", s.id, "reason", reason, "error", err)
	return fmt.Errorf("%w: %v", sentinelFor(reason), err)
}

func sentinelFor(reason ErrorReason) error {
	switch reason {
	case ReasonPermissionDenied:
		return ErrPermissionDenied
	case ReasonDeviceBusy:
		return ErrDeviceBusy
	case ReasonUnsupportedConstraints:
		return ErrUnsupportedConstraints
	default:
		return ErrDeviceNotFound
	}
}

// scheduleTickLocked arms the self-rescheduling loop timer. The captured
// generation lets a fired tick detect that the session has been torn down
// or restarted since the timer was armed.
func (s *Session) scheduleTickLocked(d time.Duration) {
	gen := s.generation
	s.loopTimer = time.AfterFunc(d, func() { s.tick(gen) })
}

// tick runs one live-loop iteration. Flags are re-checked before and
// after the pipeline invocation: results computed after the session left
// Active are discarded rather than cancelled.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateActive || s.stopProcessing {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		// Previous invocation still running: skip this trigger entirely
		// instead of queueing behind a slow decoder.
		s.scheduleTickLocked(s.scanInterval)
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	handle := s.handle
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.scanTimeout)
	frame, err := handle.Frame(ctx)
	var result *pipeline.Result
	if err == nil {
		result, err = s.detector.Detect(ctx, frame)
	}
	cancel()

	s.mu.Lock()
	s.inFlight = false
	if gen != s.generation || s.state != StateActive || s.stopProcessing {
		s.mu.Unlock() // stale result, session moved on
		return
	}

	switch {
	case err == nil:
		s.result = result
		s.stopProcessing = true
		s.teardownLocked()
		s.setStateLocked(StateIdle)
		onResult := s.onResult
		s.mu.Unlock()
		s.logger.Info("identifier accepted", "session_id", s.id, "kind", result.Kind, "method", result.Method)
		if onResult != nil {
			onResult(result)
		}
		return
	case errors.Is(err, pipeline.ErrNoIdentifierFound), errors.Is(err, ErrNoFrame):
		s.scheduleTickLocked(s.scanInterval)
	default:
		s.errorCount++
		s.lastError = ReasonTransientDecoder
		s.logger.Debug("pipeline error, backing off", "session_id", s.id, "error", err)
		s.scheduleTickLocked(s.errorInterval)
	}
	s.mu.Unlock()
}

// onTimeout forces Active -> Error when the scan deadline expires with no
// accepted identifier, bounding how long the camera is held.
func (s *Session) onTimeout(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != StateActive {
		return
	}
	s.teardownLocked()
	s.lastError = ReasonScanTimeout
	s.setStateLocked(StateError)
	s.logger.Info("scan session timed out", "session_id", s.id)
}

// ScanUpload runs the pipeline once, synchronously, for an uploaded image.
func (s *Session) ScanUpload(ctx context.Context, img image.Image) (*pipeline.Result, error) {
	s.mu.Lock()
	if s.mode != ModeUpload {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: scan-upload requires upload mode", ErrInvalidTransition)
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot scan from %s", ErrInvalidTransition, s.state)
	}
	gen := s.generation
	s.mu.Unlock()

	result, err := s.detector.Detect(ctx, img)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != StateIdle {
		return nil, ErrSessionStopped
	}
	if err != nil {
		return nil, err
	}
	s.result = result
	return result, nil
}

// SwitchMode changes the image-source mode. A full teardown runs first so
// that no camera handle or timer survives the switch.
func (s *Session) SwitchMode(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEmergencyStopped {
		return fmt.Errorf("%w: emergency stop must be acknowledged first", ErrInvalidTransition)
	}
	s.teardownLocked()
	s.mode = mode
	s.setStateLocked(StateIdle)
	return nil
}

// SwitchCamera releases the current handle and reacquires the camera,
// e.g. after the operator picks a different physical device. The session
// passes through SwitchingCamera; the single-handle invariant holds at
// every intermediate step because teardown completes before Open.
func (s *Session) SwitchCamera(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot switch camera from %s", ErrInvalidTransition, s.state)
	}
	s.teardownLocked()
	s.setStateLocked(StateSwitchingCamera)
	s.mu.Unlock()

	return s.acquireAndActivate(ctx, StateSwitchingCamera)
}

// Stop tears the session down and returns it to Idle.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEmergencyStopped {
		return
	}
	s.teardownLocked()
	s.setStateLocked(StateIdle)
}

// EmergencyStop is the override transition: reachable from any state, it
// immediately releases the camera and cancels all timers. Only an
// explicit Acknowledge returns the session to Idle.
func (s *Session) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.stopProcessing = true
	s.setStateLocked(StateEmergencyStopped)
	s.logger.Warn("emergency stop", "session_id", s.id)
}

// Acknowledge returns an emergency-stopped session to Idle.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEmergencyStopped {
		return fmt.Errorf("%w: acknowledge requires emergency-stopped state", ErrInvalidTransition)
	}
	s.setStateLocked(StateIdle)
	return nil
}

// teardownLocked releases everything the session holds: the camera
// handle, the loop timer and the timeout timer. Idempotent; a bumped
// generation makes any already-fired timer callback a no-op.
func (s *Session) teardownLocked() {
	s.generation++
	if s.loopTimer != nil {
		s.loopTimer.Stop()
		s.loopTimer = nil
	}
	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
		s.timeoutTimer = nil
	}
	if s.handle != nil {
		if err := s.handle.Close(); err != nil {
			s.logger.Warn("closing camera handle", "session_id", s.id, "error", err)
		}
		s.handle = nil
	}
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}
