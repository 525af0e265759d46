package decode

import (
	"context"
	"errors"
	"image"
)

// SourceMethod identifies which decode capability produced a payload.
type SourceMethod string

const (
	MethodBarcode1D SourceMethod = "barcode_1d"
	MethodBarcode2D SourceMethod = "barcode_2d"
	MethodRawMatrix SourceMethod = "raw_matrix"
	MethodOCR       SourceMethod = "ocr"
)

// ErrNoResult is returned by a capability when the image contains nothing
// it can decode. It is an expected outcome, not a failure.
var ErrNoResult = errors.New("no decode result")

// DecodedPayload is the text recovered by a single capability call.
type DecodedPayload struct {
	Text   string
	Method SourceMethod
}

// BarcodeDecoder decodes 1D and 2D barcodes from a raster image.
type BarcodeDecoder interface {
	DecodeBarcode(ctx context.Context, img image.Image) (*DecodedPayload, error)
}

// MatrixDecoder decodes a QR matrix directly from raw pixels. It is the
// salvage path for codes the primary barcode decoder misses.
type MatrixDecoder interface {
	DecodeMatrix(ctx context.Context, img image.Image) (*DecodedPayload, error)
}

// TextRecognizer extracts visible text from an image.
type TextRecognizer interface {
	// RecognizeText transcribes all visible text in the image
	RecognizeText(ctx context.Context, img image.Image) (*DecodedPayload, error)
	// Close closes the recognizer and releases resources
	Close() error
}
