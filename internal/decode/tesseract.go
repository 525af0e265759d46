package decode

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// labelChars is the character set for packaging-label OCR. Lowercase is
// excluded to reduce 0/O and 1/l confusion on digit-heavy labels.
const labelChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ:/()-. "

// Tesseract implements TextRecognizer using a local Tesseract install.
// The gosseract client is not safe for concurrent use, so calls are
// serialized with a mutex.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a new Tesseract text recognizer.
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting OCR language: %w", err)
	}

	// Disable dictionary-based word correction - IMEIs and serials are not
	// English words and Tesseract will otherwise "fix" digits into words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable("language_model_penalty_non_dict_word", "0")
	_ = client.SetVariable("language_model_penalty_non_freq_dict_word", "0")

	if err := client.SetWhitelist(labelChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting OCR whitelist: %w", err)
	}

	return &Tesseract{client: client}, nil
}

// RecognizeText transcribes all visible text in the image.
func (t *Tesseract) RecognizeText(ctx context.Context, img image.Image) (*DecodedPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pngData, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(pngData); err != nil {
		return nil, fmt.Errorf("setting OCR image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("running OCR: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoResult
	}

	return &DecodedPayload{Text: text, Method: MethodOCR}, nil
}

// Close closes the underlying Tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
