package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// DefaultVertexModel transcribes invoice pages.
const DefaultVertexModel = "gemini-1.5-pro"

// --- Transcription Model Prompts ---
const TranscriptionSystemPrompt = "You are an OCR engine for scanned Portuguese invoices. You return the text printed on the page and nothing else."
const TranscriptionUserPrompt = `Transcribe all text visible on the provided invoice page.

Follow these rules:
1.  Keep the reading order of the page, one printed line per output line.
2.  Copy numbers exactly as printed, including decimal commas, thousands separators and currency symbols.
3.  Copy tax identification numbers, dates and document numbers character by character. Do not correct or reformat them.
4.  Do not describe images, logos or the QR code, and do not add any commentary.

Return ONLY the transcribed text.`

// VertexClient holds the pre-configured transcription model.
type VertexClient struct {
	TranscriptionModel *genai.GenerativeModel
	baseClient         *genai.Client
}

// NewVertexClient creates a client with the transcription model configured.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultVertexModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TranscriptionSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		TranscriptionModel: model,
		baseClient:         baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
