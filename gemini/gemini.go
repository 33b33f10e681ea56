// Package gemini provides an api.LLMGenerator backed by Gemini models.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/api"
)

// DefaultModel is used when no model name is configured
const DefaultModel = "publishers/google/models/gemini-2.5-flash"

// Generator wraps a genai.Client to implement the LLMGenerator interface
type Generator struct {
	client    *genai.Client
	modelName string
}

// NewGenerator creates a new Gemini generator
// client: genai.Client from google.golang.org/genai
// modelName: the model to use (e.g., "gemini-2.5-flash"); DefaultModel if empty
func NewGenerator(client *genai.Client, modelName string) *Generator {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Generator{
		client:    client,
		modelName: modelName,
	}
}

// ModelName returns the model the generator calls
func (g *Generator) ModelName() string {
	return g.modelName
}

// Generate implements LLMGenerator.Generate
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.generate(ctx, prompt, &genai.GenerateContentConfig{})
	if err != nil {
		return "", err
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// StructuredGenerate implements LLMGenerator.StructuredGenerate
// The model is constrained to JSON matching schema and the reply is decoded into a map.
func (g *Generator) StructuredGenerate(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	resp, err := g.generate(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	})
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return nil, fmt.Errorf("%w: decode structured response: %v", api.ErrLLMGenerationFailed, err)
	}
	return out, nil
}

func (g *Generator) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	content := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
		},
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.modelName,
		[]*genai.Content{content},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrLLMGenerationFailed, err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates returned", api.ErrLLMGenerationFailed)
	}

	if resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no parts in response", api.ErrLLMGenerationFailed)
	}

	return resp, nil
}

// Verify that Generator implements LLMGenerator
var _ api.LLMGenerator = (*Generator)(nil)
