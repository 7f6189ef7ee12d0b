package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultGenerationModel = "gemini-2.0-flash"
	maxReplyTokens         = 512
)

const systemPromptTemplate = `You are a polite customer service representative for an online store.
Write a short, helpful reply to the customer's review of the product below.
Answer in the language of the review. Use only the context provided; do not invent facts.

Product: %s
Category: %s

Relevant product information and earlier reviews:
%s`

const noContext = "No additional context found."

type ReplyRequest struct {
	ProductName string
	Category    string
	ReviewText  string
	Context     []string
}

type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Generator, error) {
	client, err := newClient(ctx, apiKey, opts...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultGenerationModel
	}
	return &Generator{client: client, model: model}, nil
}

// SystemPrompt renders the instructions for one reply.
func SystemPrompt(req ReplyRequest) string {
	retrieved := noContext
	if len(req.Context) > 0 {
		lines := make([]string, 0, len(req.Context))
		for _, c := range req.Context {
			lines = append(lines, "- "+c)
		}
		retrieved = strings.Join(lines, "\n\n")
	}
	return fmt.Sprintf(systemPromptTemplate, req.ProductName, req.Category, retrieved)
}

func (g *Generator) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(SystemPrompt(req)))
	model.SetMaxOutputTokens(maxReplyTokens)

	res, err := model.GenerateContent(ctx, genai.Text("Customer review:\n"+req.ReviewText))
	if err != nil {
		slog.ErrorContext(ctx, "reply generation failed", "model", g.model, "error", err)
		return "", err
	}

	var sb strings.Builder
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, part := range res.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", fmt.Errorf("empty reply received")
	}

	if res.UsageMetadata != nil {
		slog.InfoContext(ctx, "generated reply",
			"product_name", req.ProductName,
			"input_tokens", res.UsageMetadata.PromptTokenCount,
			"output_tokens", res.UsageMetadata.CandidatesTokenCount,
		)
	}
	return reply, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}
