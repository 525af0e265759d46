// Package pipeline orchestrates the escalating decode attempts for one
// still image and resolves the accumulated candidates into a single
// reported identifier.
package pipeline

import (
	"context"
	"image"
	"log/slog"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/extract"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/validate"
)

// Candidate is an extracted candidate stamped with the capability that
// decoded the text it came from.
type Candidate struct {
	Value  string
	Kind   extract.Kind
	Origin extract.Origin
	Method decode.SourceMethod
}

// Attempt records one stage of the escalation for the scan journal.
type Attempt struct {
	Stage   string              `json:"stage"`
	Decoded bool                `json:"decoded"`
	Method  decode.SourceMethod `json:"method,omitempty"`
}

// Pipeline drives the Decoder Adapter through the fixed stage order.
type Pipeline struct {
	adapter *decode.Adapter
	logger  *slog.Logger
}

// New creates a detection pipeline over the given adapter.
func New(adapter *decode.Adapter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{adapter: adapter, logger: logger}
}

type stage struct {
	name string
	run  func(ctx context.Context) *decode.DecodedPayload
}

// Detect runs the ordered decode attempts against one image, feeding every
// decoded text through extraction and validation, and short-circuits as
// soon as a stage yields an accepted IMEI. When no stage is accepted the
// accumulated candidates go through the resolver.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) (*Result, error) {
	// Preprocessed copies are built lazily: most scans resolve on the
	// original image and never pay for them.
	var contrast, resized, ocrPrepared image.Image
	withContrast := func() image.Image {
		if contrast == nil {
			contrast = decode.EnhanceContrast(img)
		}
		return contrast
	}
	withResized := func() image.Image {
		if resized == nil {
			resized = decode.ResizeSquare(img)
		}
		return resized
	}
	withOCRPrepared := func() image.Image {
		if ocrPrepared == nil {
			ocrPrepared = decode.PrepareOCR(img)
		}
		return ocrPrepared
	}

	stages := []stage{
		{"barcode", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.Barcode(ctx, img)
		}},
		{"ocr", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.OCR(ctx, img)
		}},
		{"raw-matrix", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.Matrix(ctx, img)
		}},
		{"barcode-contrast", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.Barcode(ctx, withContrast())
		}},
		{"raw-matrix-contrast", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.Matrix(ctx, withContrast())
		}},
		{"barcode-resized", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.Barcode(ctx, withResized())
		}},
		{"raw-matrix-resized", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.Matrix(ctx, withResized())
		}},
		{"ocr-final", func(ctx context.Context) *decode.DecodedPayload {
			return p.adapter.OCR(ctx, withOCRPrepared())
		}},
	}

	var (
		imeis, mobiles []Candidate
		attempts       []Attempt
		seenIMEI       = make(map[string]bool)
		seenMobile     = make(map[string]bool)
	)

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload := st.run(ctx)
		attempt := Attempt{Stage: st.name, Decoded: payload != nil}
		if payload != nil {
			attempt.Method = payload.Method
		}
		attempts = append(attempts, attempt)

		if payload == nil {
			continue
		}

		stageIMEIs, stageMobiles := extract.Extract(payload.Text)
		for _, c := range stageIMEIs {
			if seenIMEI[c.Value] {
				continue
			}
			seenIMEI[c.Value] = true
			imeis = append(imeis, Candidate{Value: c.Value, Kind: c.Kind, Origin: c.Origin, Method: payload.Method})
		}
		for _, c := range stageMobiles {
			if seenMobile[c.Value] {
				continue
			}
			seenMobile[c.Value] = true
			mobiles = append(mobiles, Candidate{Value: c.Value, Kind: c.Kind, Origin: c.Origin, Method: payload.Method})
		}

		// First accepted IMEI in document order wins and ends the scan.
		for _, c := range imeis {
			if v := validate.IMEI(c.Value); v.IsValid {
				p.logger.Debug("identifier accepted", "stage", st.name, "method", c.Method)
				return &Result{
					Identifier: c.Value,
					Kind:       c.Kind,
					Origin:     c.Origin,
					Method:     c.Method,
					Reason:     validate.ReasonNone,
					Attempts:   attempts,
				}, nil
			}
		}
	}

	return Resolve(imeis, mobiles, attempts)
}
