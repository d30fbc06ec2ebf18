package ollama

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/undertone-analyzer/pkg/processing"
	"github.com/menta2k/undertone-analyzer/pkg/types"
	"github.com/menta2k/undertone-analyzer/pkg/vlm"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "qwen2.5vl:7b"

	// long side cap for uploaded images
	maxImageDim = 1024
)

// Client locates faces with a vision model served by Ollama
type Client struct {
	client    *api.Client
	model     string
	processor *processing.Processor
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// base URL without path like /api/chat
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client:    api.NewClient(baseURL, http.DefaultClient),
		model:     model,
		processor: processing.NewProcessor(),
	}, nil
}

// Model returns the model name used for face location
func (c *Client) Model() string {
	return c.model
}

// Initialize checks that the Ollama server is reachable
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

// DetectFaces asks the model for the most prominent face in img
func (c *Client) DetectFaces(ctx context.Context, img image.Image) ([]types.Detection, error) {
	content, err := c.Query(ctx, vlm.FacePrompt, img)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return vlm.ParseFaceResult(content).Detections(bounds.Dx(), bounds.Dy()), nil
}

// Query sends a prompt with an image and returns the raw model answer
func (c *Client) Query(ctx context.Context, prompt string, img image.Image) (string, error) {
	imgBytes, err := c.processor.EncodeForModel(img, "jpg", maxImageDim, 90)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: modelOptions(c.model),
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	if strings.TrimSpace(responseContent) == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return responseContent, nil
}

// modelOptions keeps the answers of the locator deterministic
func modelOptions(model string) map[string]any {
	options := map[string]any{
		"temperature": 0.0,
	}

	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v") || strings.Contains(modelLower, "minicpmv") {
		options["num_ctx"] = 4096
	}
	return options
}
