package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

// ErrEmptyResponse is returned when the model produced no text part.
var ErrEmptyResponse = errors.New("model returned no text")

// Generator is the subset of *genai.GenerativeModel used for transcription.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Vertex transcribes pages with a Gemini model. The model is shared, so
// recognizers hold no per-document state.
type Vertex struct {
	Model  Generator
	Prompt string
}

// NewVertex wraps a configured transcription model.
func NewVertex(model Generator, prompt string) *Vertex {
	return &Vertex{Model: model, Prompt: prompt}
}

func (v *Vertex) NewRecognizer(ctx context.Context) (pipeline.TextRecognizer, error) {
	if v.Model == nil {
		return nil, fmt.Errorf("vertex transcription model not configured")
	}
	return v, ctx.Err()
}

func (v *Vertex) Recognize(ctx context.Context, img image.Image, languageHint string) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}

	prompt := v.Prompt
	if languageHint != "" {
		prompt += fmt.Sprintf("\nThe document language is %q (ISO 639-2).", languageHint)
	}

	resp, err := v.Model.GenerateContent(ctx, genai.ImageData("png", buf.Bytes()), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return ResponseText(resp)
}

func (v *Vertex) Close() error { return nil }

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(sb.String()), nil
}
