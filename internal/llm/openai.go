package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// #region settings
// Settings configure an OpenAI-compatible endpoint. BaseURL may point at any
// compatible gateway (DeepSeek, Gemini's OpenAI surface, a local server).
type Settings struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// #endregion settings

// #region client
// OpenAI implements the generation model and the embedder with the official
// openai-go SDK.
type OpenAI struct {
	Model          string
	EmbeddingModel string
	Opts           []option.RequestOption
}

// NewOpenAI validates cfg and builds the client options.
func NewOpenAI(cfg Settings, extra ...option.RequestOption) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	return &OpenAI{Model: cfg.Model, EmbeddingModel: cfg.EmbeddingModel, Opts: opts}, nil
}

// Complete sends prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	client := openai.NewClient(o.Opts...)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text. It fails when no embedding model is
// configured so callers can fall back to lexical similarity.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.EmbeddingModel == "" {
		return nil, errors.New("openai: no embedding model configured")
	}
	client := openai.NewClient(o.Opts...)

	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai: empty embedding")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// #endregion client
