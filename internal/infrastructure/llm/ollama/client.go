package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New creates a client. A nil executor disables retries and breaking.
func New(baseURL, genModel, embedModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Embedder calls /api/embed and returns unit-length vectors of a fixed
// dimension.
type Embedder struct {
	client *Client
	dim    int
}

func NewEmbedder(client *Client, dim int) *Embedder {
	return &Embedder{client: client, dim: dim}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, opEmbed); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}

	out := make([][]float32, len(response.Embeddings))
	for i, v := range response.Embeddings {
		if e.dim > 0 && len(v) != e.dim {
			return nil, domain.WrapError(domain.ErrDimensionMismatch, "ollama embed", fmt.Errorf("model returned %d dims, want %d", len(v), e.dim))
		}
		out[i] = domain.Normalize(v)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator answers from retrieved evidence with a multimodal model.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, evidence domain.Evidence) (string, error) {
	reqBody := map[string]any{
		"model":  g.client.genModel,
		"prompt": buildEvidencePrompt(evidence),
		"stream": false,
	}
	if len(evidence.Images) > 0 {
		images := make([]string, 0, len(evidence.Images))
		for _, img := range evidence.Images {
			images = append(images, img.Base64)
		}
		reqBody["images"] = images
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "/api/generate", reqBody, &response, opGenerate); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

var (
	_ ports.Embedder        = (*Embedder)(nil)
	_ ports.AnswerGenerator = (*Generator)(nil)
)
