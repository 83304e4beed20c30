// Package claude implements llm.Generator with the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/nutrilens/internal/domain"
	"github.com/vbonduro/nutrilens/internal/llm"
)

// maxTokens fits a recipe response with room to spare.
const maxTokens = 2048

type ClaudeGenerator struct {
	client *anthropic.Client
	model  string
}

func NewClaudeGenerator(apiKey, model string, opts ...anthropic.ClientOption) *ClaudeGenerator {
	return &ClaudeGenerator{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (g *ClaudeGenerator) Model() string { return g.model }

// buildMessages constructs the user turn: the image first when present, then
// the instruction text.
func buildMessages(req domain.AnalysisRequest) []anthropic.Message {
	content := make([]anthropic.MessageContent, 0, 2)
	if img, ok := req.(domain.ImageAnalysis); ok {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				normaliseMIME(img.MimeType),
				base64.StdEncoding.EncodeToString(img.Image),
			),
		))
	}
	content = append(content, anthropic.NewTextMessageContent(llm.BuildPrompt(req)))
	return []anthropic.Message{{Role: anthropic.RoleUser, Content: content}}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req domain.AnalysisRequest) (string, error) {
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		Messages:  buildMessages(req),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}
	return resp.GetFirstContentText(), nil
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// The Anthropic API accepts only jpeg, png, gif, and webp. Unknown types are
// coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
