package decode

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// labelTranscriptionPrompt is the shared prompt used by the vision-model
// OCR backends. The goal is a verbatim transcription: extraction and
// validation of identifiers happens downstream, not in the model.
const labelTranscriptionPrompt = `You are reading a phone packaging label or device screen.

Transcribe EVERY piece of visible text exactly as printed, one line per
printed line. Pay special attention to:

1. **IMEI numbers**: 15-digit device identifiers, often printed after
   labels like "IMEI", "IMEI1", "IMEI2" or "IMEI/MEID". Transcribe every
   digit exactly; do not correct, group or reformat them.
2. **Serial numbers**: alphanumeric values after "S/N" or "SERIAL".
3. **Any other digit sequences**: barcode subtitles, model numbers, batch
   codes.

Important:
- Output plain text only, no markdown, no commentary
- Never guess at unreadable characters; skip them
- Keep labels and their values on the same line (e.g. "IMEI1: 354626223546262")`

// Gemini implements TextRecognizer using Google Gemini vision models.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini text recognizer.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// RecognizeText transcribes all visible text in the image.
func (g *Gemini) RecognizeText(ctx context.Context, img image.Image) (*DecodedPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pngData, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(labelTranscriptionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoResult
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(responseText.String())
	if text == "" {
		return nil, ErrNoResult
	}

	return &DecodedPayload{Text: text, Method: MethodOCR}, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
