package decode

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// Adapter bundles the three decode capabilities behind one boundary.
// Each call is isolated: a capability that fails or panics yields "no
// result" for that call only and never aborts the others. Capabilities are
// not retried here; retries happen upstream via different preprocessing.
type Adapter struct {
	barcode BarcodeDecoder
	matrix  MatrixDecoder
	ocr     TextRecognizer
}

// NewAdapter creates an Adapter. Any capability may be nil, in which case
// calls to it report no result.
func NewAdapter(barcode BarcodeDecoder, matrix MatrixDecoder, ocr TextRecognizer) *Adapter {
	return &Adapter{
		barcode: barcode,
		matrix:  matrix,
		ocr:     ocr,
	}
}

// Barcode runs the 1D/2D barcode capability. Returns nil when nothing decoded.
func (a *Adapter) Barcode(ctx context.Context, img image.Image) *DecodedPayload {
	if a.barcode == nil {
		return nil
	}
	return safeDecode("barcode", func() (*DecodedPayload, error) {
		return a.barcode.DecodeBarcode(ctx, img)
	})
}

// Matrix runs the raw QR-matrix capability. Returns nil when nothing decoded.
func (a *Adapter) Matrix(ctx context.Context, img image.Image) *DecodedPayload {
	if a.matrix == nil {
		return nil
	}
	return safeDecode("matrix", func() (*DecodedPayload, error) {
		return a.matrix.DecodeMatrix(ctx, img)
	})
}

// OCR runs the text-recognition capability. Returns nil when no text found.
func (a *Adapter) OCR(ctx context.Context, img image.Image) *DecodedPayload {
	if a.ocr == nil {
		return nil
	}
	return safeDecode("ocr", func() (*DecodedPayload, error) {
		return a.ocr.RecognizeText(ctx, img)
	})
}

// Close closes the text recognizer, the only capability holding resources.
func (a *Adapter) Close() error {
	if a.ocr == nil {
		return nil
	}
	return a.ocr.Close()
}

// safeDecode converts capability errors and panics into a nil payload.
func safeDecode(name string, fn func() (*DecodedPayload, error)) (payload *DecodedPayload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("decode capability panicked", "capability", name, "panic", r)
			payload = nil
		}
	}()

	payload, err := fn()
	if err != nil {
		if !errors.Is(err, ErrNoResult) {
			slog.Debug("decode capability failed", "capability", name, "error", err)
		}
		return nil
	}
	if payload == nil || payload.Text == "" {
		return nil
	}
	return payload
}
