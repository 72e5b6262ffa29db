// Package cutout wraps the external background-removal service. The service
// speaks a chat-completions API with image modality: the photo goes in as a
// base64 data URL and the cutout comes back the same way.
package cutout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"photobot/internal/domain"
	"photobot/internal/infra"
)

const (
	standardPrompt = "Delete background"
	improvedPrompt = "Remove background with high precision. Pay special attention to hair details, " +
		"edges, and fine details. Make the cutout as clean and professional as possible."

	dataURLPrefix = "data:image/png;base64,"
)

// Options controls how the cutout client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the background-removal service.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
}

// New constructs a cutout client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one with a generous timeout will be created.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("cutout: api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("cutout: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("cutout: model is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	var logger infra.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Images []struct {
				Type     string   `json:"type"`
				ImageURL imageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// RemoveBackground submits the photo and returns the transparent cutout.
func (c *Client) RemoveBackground(ctx context.Context, img []byte, tier domain.Tier) ([]byte, error) {
	prompt := standardPrompt
	if tier == domain.TierImproved {
		prompt = improvedPrompt
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURLPrefix + base64.StdEncoding.EncodeToString(img)}},
			},
		}},
		Modalities: []string{"image", "text"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cutout: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cutout: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cutout: call service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("cutout: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("cutout: service error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("cutout: unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("cutout: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.Images) == 0 {
		return nil, errors.New("cutout: no image in response")
	}

	image := parsed.Choices[0].Message.Images[0]
	if image.Type != "image_url" || !strings.HasPrefix(image.ImageURL.URL, dataURLPrefix) {
		return nil, errors.New("cutout: response image is not an inline png")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(image.ImageURL.URL, dataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("cutout: decode image payload: %w", err)
	}
	c.logger.Debug().Int("bytes", len(data)).Str("tier", string(tier)).Msg("cutout: received cutout")
	return data, nil
}
