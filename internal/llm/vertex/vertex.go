// Package vertex implements llm.Generator with Gemini on Vertex AI.
package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vbonduro/nutrilens/internal/credential"
	"github.com/vbonduro/nutrilens/internal/domain"
	"github.com/vbonduro/nutrilens/internal/llm"
)

// DefaultLocation is used when no region is configured.
const DefaultLocation = "us-central1"

// maxOutputTokens leaves room for a full recipe with per-condition notes.
const maxOutputTokens = 2048

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	Project  string
	Location string
	Model    string
}

type VertexGenerator struct {
	models contentGenerator
	model  string
}

// New builds a Vertex AI client authenticated with cred. Project falls back
// to the credential's project_id.
func New(ctx context.Context, cred *credential.Credential, cfg Config) (*VertexGenerator, error) {
	if cred == nil {
		return nil, errors.New("vertex: credential is required")
	}
	if cfg.Project == "" {
		cfg.Project = cred.ProjectID
	}
	if cfg.Project == "" {
		return nil, errors.New("vertex: project id is required")
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Model == "" {
		return nil, errors.New("vertex: model name is required")
	}

	authCreds, err := cred.AuthCredentials(credential.CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("vertex: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.Project,
		Location:    cfg.Location,
		Credentials: authCreds,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex: failed to create genai client: %w", err)
	}

	return &VertexGenerator{models: client.Models, model: cfg.Model}, nil
}

func (g *VertexGenerator) Model() string { return g.model }

func (g *VertexGenerator) Generate(ctx context.Context, req domain.AnalysisRequest) (string, error) {
	parts := make([]*genai.Part, 0, 2)
	if img, ok := req.(domain.ImageAnalysis); ok {
		parts = append(parts, genai.NewPartFromBytes(img.Image, normaliseMIME(img.MimeType)))
	}
	parts = append(parts, genai.NewPartFromText(llm.BuildPrompt(req)))

	temperature := float32(0.2)
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: maxOutputTokens,
		})
	if err != nil {
		return "", fmt.Errorf("failed to call vertex: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("vertex returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", errors.New("vertex blocked the response for safety")
	}
	if cand.Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// normaliseMIME maps upload MIME types to the image types Gemini accepts.
// Anything else is labeled jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/webp", "image/heic", "image/heif":
		return mimeType
	default:
		return "image/jpeg"
	}
}
