package decode

import (
	"context"
	"image"

	"github.com/liyue201/goqr"
)

// RawQRDecoder implements MatrixDecoder using the pure-Go goqr recognizer.
// It reads the QR matrix directly from pixels and sometimes succeeds on
// frames the binarized gozxing path gives up on.
type RawQRDecoder struct{}

// NewRawQRDecoder creates a raw-matrix QR decoder.
func NewRawQRDecoder() *RawQRDecoder {
	return &RawQRDecoder{}
}

// DecodeMatrix recognizes QR codes in the image and returns the first payload.
func (d *RawQRDecoder) DecodeMatrix(ctx context.Context, img image.Image) (*DecodedPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	codes, err := goqr.Recognize(img)
	if err != nil || len(codes) == 0 {
		return nil, ErrNoResult
	}

	return &DecodedPayload{Text: string(codes[0].Payload), Method: MethodRawMatrix}, nil
}
