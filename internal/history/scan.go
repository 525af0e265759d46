package history

import (
	"time"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/extract"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/pipeline"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/validate"
)

// EntrySource records how a scan entry came to exist.
type EntrySource string

const (
	SourceUpload EntrySource = "upload"
	SourceCamera EntrySource = "camera"
	SourceManual EntrySource = "manual"
)

// Scan is one journal entry: a resolved identifier plus how it was found.
type Scan struct {
	ID         string              `json:"id"`
	Identifier string              `json:"identifier"`
	Kind       extract.Kind        `json:"kind"`
	Origin     extract.Origin      `json:"origin,omitempty"`
	Method     decode.SourceMethod `json:"method,omitempty"`
	Source     EntrySource         `json:"source"`

	// Fallback and Reason carry the lenient-resolution marker through to
	// the journal so unvalidated identifiers stay distinguishable.
	Fallback bool            `json:"fallback,omitempty"`
	Reason   validate.Reason `json:"reason,omitempty"`

	Attempts []pipeline.Attempt `json:"attempts,omitempty"`

	// Filename points at the archived source image, empty for manual
	// entries.
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
