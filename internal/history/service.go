package history

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/extract"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/pipeline"
)

// Detector runs the detection pipeline over one image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*pipeline.Result, error)
}

// IDGenerator generates unique IDs for scan entries
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles scan journal operations
type Service struct {
	db          DB
	detector    Detector
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, detector Detector, storage Storage) *Service {
	return &Service{
		db:          db,
		detector:    detector,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, detector Detector, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		detector:    detector,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length; phone cameras generate very long names.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "scan"
	}

	return base + ext
}

// ProcessUpload archives an uploaded image, runs the one-shot detection
// pipeline over it and journals the resolved identifier.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType string) (*Scan, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("archiving file: %w", err)
	}

	img, err := decode.DecodeUpload(data, contentType)
	if err != nil {
		slog.Error("Failed to decode upload",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("decoding upload: %w", err)
	}

	result, err := s.detector.Detect(ctx, img)
	if err != nil {
		slog.Info("No identifier found in upload", "filename", filename, "error", err)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("detecting identifier: %w", err)
	}

	scan := &Scan{
		ID:          id,
		Identifier:  result.Identifier,
		Kind:        result.Kind,
		Origin:      result.Origin,
		Method:      result.Method,
		Source:      SourceUpload,
		Fallback:    result.Fallback,
		Reason:      result.Reason,
		Attempts:    result.Attempts,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
	}

	if err := s.db.SaveScan(scan); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving scan to database: %w", err)
	}

	return scan, nil
}

// RecordSessionResult journals an identifier accepted by a live camera
// session.
func (s *Service) RecordSessionResult(result *pipeline.Result) (*Scan, error) {
	scan := &Scan{
		ID:         s.idGenerator.Generate(),
		Identifier: result.Identifier,
		Kind:       result.Kind,
		Origin:     result.Origin,
		Method:     result.Method,
		Source:     SourceCamera,
		Fallback:   result.Fallback,
		Reason:     result.Reason,
		Attempts:   result.Attempts,
		CreatedAt:  s.timeSource.Now(),
	}
	if err := s.db.SaveScan(scan); err != nil {
		return nil, fmt.Errorf("saving scan to database: %w", err)
	}
	return scan, nil
}

// ManualEntry journals an operator-typed identifier. The value is stored
// verbatim: this path does not go through the validator.
func (s *Service) ManualEntry(identifier string) (*Scan, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}

	kind := extract.KindMobile
	if len(identifier) == 15 {
		kind = extract.KindIMEI
	}

	scan := &Scan{
		ID:         s.idGenerator.Generate(),
		Identifier: identifier,
		Kind:       kind,
		Source:     SourceManual,
		CreatedAt:  s.timeSource.Now(),
	}
	if err := s.db.SaveScan(scan); err != nil {
		return nil, fmt.Errorf("saving scan to database: %w", err)
	}
	return scan, nil
}

// ListScans returns all journal entries.
func (s *Service) ListScans() ([]*Scan, error) {
	return s.db.ListScans()
}

// GetScan returns one journal entry.
func (s *Service) GetScan(id string) (*Scan, error) {
	return s.db.GetScan(id)
}

// GetScanImage returns the archived source image for a scan.
func (s *Service) GetScanImage(id string) ([]byte, string, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, "", err
	}
	if scan.Filename == "" {
		return nil, "", fmt.Errorf("scan has no archived image: %s", id)
	}
	data, err := s.storage.Get(scan.Filename)
	if err != nil {
		return nil, "", err
	}
	return data, scan.ContentType, nil
}

// DeleteScan removes a journal entry and its archived image.
func (s *Service) DeleteScan(id string) error {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteScan(id); err != nil {
		return fmt.Errorf("deleting scan: %w", err)
	}
	if scan.Filename != "" {
		if err := s.storage.Delete(scan.Filename); err != nil {
			slog.Warn("Failed to delete archived image", "id", id, "filename", scan.Filename, "error", err)
		}
	}
	return nil
}
