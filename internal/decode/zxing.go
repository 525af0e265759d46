package decode

import (
	"context"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZXingDecoder implements BarcodeDecoder using gozxing readers.
// 1D readers are tried before the QR reader so linear product barcodes
// on packaging win over incidental 2D codes.
type ZXingDecoder struct {
	oneD []gozxing.Reader
	twoD []gozxing.Reader
}

// NewZXingDecoder creates a decoder with the barcode formats found on
// phone packaging.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		oneD: []gozxing.Reader{
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
			oned.NewEAN13Reader(),
			oned.NewEAN8Reader(),
			oned.NewUPCAReader(),
			oned.NewUPCEReader(),
			oned.NewITFReader(),
		},
		twoD: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
		},
	}
}

// DecodeBarcode tries each reader in order and returns the first hit.
func (d *ZXingDecoder) DecodeBarcode(ctx context.Context, img image.Image) (*DecodedPayload, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("building binary bitmap: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	for _, reader := range d.oneD {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if result, err := reader.Decode(bmp, hints); err == nil && result != nil {
			return &DecodedPayload{Text: result.GetText(), Method: MethodBarcode1D}, nil
		}
	}

	for _, reader := range d.twoD {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if result, err := reader.Decode(bmp, hints); err == nil && result != nil {
			return &DecodedPayload{Text: result.GetText(), Method: MethodBarcode2D}, nil
		}
	}

	return nil, ErrNoResult
}
