package analysis

import (
	"context"
	"fmt"
	"strings"

	vertex "cloud.google.com/go/vertexai/genai"

	"labreader/internal/config"
)

type vertexCompleter struct {
	client      *vertex.Client
	model       string
	temperature float32
	topP        float32
	maxTokens   int32
}

func newVertexCompleter(ctx context.Context, pc config.ProviderConfig, cfg config.AnalysisConfig) (*vertexCompleter, error) {
	if pc.Project == "" || pc.Location == "" {
		return nil, fmt.Errorf("vertex: project and location cannot be empty")
	}
	client, err := vertex.NewClient(ctx, pc.Project, pc.Location)
	if err != nil {
		return nil, fmt.Errorf("vertex.NewClient: %w", err)
	}
	return &vertexCompleter{
		client:      client,
		model:       modelName(config.ProviderVertex, pc),
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   int32(cfg.MaxOutputTokens),
	}, nil
}

func (v *vertexCompleter) complete(ctx context.Context, system, user string) (string, error) {
	m := v.client.GenerativeModel(v.model)
	m.SystemInstruction = &vertex.Content{
		Parts: []vertex.Part{vertex.Text(system)},
	}
	m.SetTemperature(v.temperature)
	m.SetTopP(v.topP)
	if v.maxTokens > 0 {
		m.SetMaxOutputTokens(v.maxTokens)
	}
	resp, err := m.GenerateContent(ctx, vertex.Text(user))
	if err != nil {
		return "", fmt.Errorf("vertex generate: %w", err)
	}
	return responseText(resp), nil
}

func responseText(resp *vertex.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(vertex.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func (v *vertexCompleter) Close() error {
	return v.client.Close()
}
