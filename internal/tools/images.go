package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/koopa0/lakitu/internal/log"
)

// ImageToolsetName is the toolset identifier constant.
const ImageToolsetName = "images"

// defaultImageCount is how many search results to return when the model
// does not ask for a specific count.
const defaultImageCount = 4

// maxImageCount caps a single search to keep tool results small enough to
// fold back into the model context.
const maxImageCount = 10

// ImagesConfig holds the backend endpoints for the image toolset.
type ImagesConfig struct {
	// SearchURL is the image search API base URL (Unsplash-compatible).
	SearchURL string
	// SearchAPIKey authenticates search requests. An empty key keeps
	// the tool registered but fails each call with a validation Result.
	SearchAPIKey string
	// GenerateURL is the image generation API base URL (SD WebUI-compatible).
	GenerateURL string
	// GenerateAPIKey authenticates generation requests (optional for local backends).
	GenerateAPIKey string
	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// SearchImagesInput defines input for the searchImages tool.
type SearchImagesInput struct {
	Query string `json:"query" jsonschema_description:"The search query describing the images to find"`
	Count int    `json:"count,omitempty" jsonschema_description:"Number of images to return (1-10, default: 4)"`
}

// GenerateImageInput defines input for the generateImage tool.
type GenerateImageInput struct {
	Prompt string `json:"prompt" jsonschema_description:"A detailed description of the image to generate"`
}

// ImageToolset provides the searchImages and generateImage tools.
type ImageToolset struct {
	searchURL      string
	searchAPIKey   string
	generateURL    string
	generateAPIKey string
	client         *http.Client
	logger         log.Logger
}

// NewImages creates an ImageToolset.
func NewImages(cfg ImagesConfig, logger log.Logger) (*ImageToolset, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search URL is required")
	}
	if cfg.GenerateURL == "" {
		return nil, fmt.Errorf("generate URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ImageToolset{
		searchURL:      cfg.SearchURL,
		searchAPIKey:   cfg.SearchAPIKey,
		generateURL:    cfg.GenerateURL,
		generateAPIKey: cfg.GenerateAPIKey,
		client:         &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// Name returns the toolset identifier.
func (it *ImageToolset) Name() string {
	return ImageToolsetName
}

// Tools returns all tools provided by this toolset.
func (it *ImageToolset) Tools() ([]*ExecutableTool, error) {
	search, err := NewTool(
		"searchImages",
		"Search for existing photos matching a query. Returns image URLs with descriptions and attribution.",
		true, // long running
		it.SearchImages,
	)
	if err != nil {
		return nil, fmt.Errorf("defining searchImages: %w", err)
	}

	generate, err := NewTool(
		"generateImage",
		"Generate a new image from a text prompt. Returns the image as a data URI.",
		true, // long running
		it.GenerateImage,
	)
	if err != nil {
		return nil, fmt.Errorf("defining generateImage: %w", err)
	}

	return []*ExecutableTool{search, generate}, nil
}

// imageSearchResponse is the search backend's result envelope.
type imageSearchResponse struct {
	Results []struct {
		ID             string `json:"id"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		URLs           struct {
			Small   string `json:"small"`
			Regular string `json:"regular"`
		} `json:"urls"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"results"`
}

// SearchImages queries the image search backend.
func (it *ImageToolset) SearchImages(ctx context.Context, input SearchImagesInput) Result {
	if input.Query == "" {
		return Failure(ErrCodeValidation, "query cannot be empty")
	}
	if it.searchAPIKey == "" {
		return Failure(ErrCodeValidation, "image search API key not configured")
	}

	count := input.Count
	if count <= 0 {
		count = defaultImageCount
	}
	if count > maxImageCount {
		count = maxImageCount
	}

	it.logger.Info("searchImages called", "query", input.Query, "count", count)

	endpoint := fmt.Sprintf("%s/search/photos?query=%s&per_page=%d",
		it.searchURL, url.QueryEscape(input.Query), count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Failuref(ErrCodeInternal, "building image search request: %v", err)
	}
	req.Header.Set("Authorization", "Client-ID "+it.searchAPIKey)

	resp, err := it.client.Do(req)
	if err != nil {
		it.logger.Error("image search request failed", "query", input.Query, "error", err)
		return Failuref(ErrCodeNetwork, "image search service unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Failuref(ErrCodeBackend, "image search service returned status %d", resp.StatusCode)
	}

	var searchResp imageSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return Failuref(ErrCodeBackend, "decoding image search response: %v", err)
	}

	if len(searchResp.Results) == 0 {
		return Failuref(ErrCodeNotFound, "no images found for %q", input.Query)
	}

	images := make([]map[string]any, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		description := r.Description
		if description == "" {
			description = r.AltDescription
		}
		images = append(images, map[string]any{
			"id":          r.ID,
			"description": description,
			"url":         r.URLs.Regular,
			"thumbnail":   r.URLs.Small,
			"credit":      r.User.Name,
		})
	}

	return Success(
		fmt.Sprintf("Found %d images for %q", len(images), input.Query),
		map[string]any{
			"query":  input.Query,
			"images": images,
		},
	)
}

// imageGenerateResponse is the generation backend's result envelope.
// Images arrive base64-encoded without a data URI prefix.
type imageGenerateResponse struct {
	Images []string `json:"images"`
}

// GenerateImage submits a prompt to the image generation backend and
// returns the first generated image as a PNG data URI.
func (it *ImageToolset) GenerateImage(ctx context.Context, input GenerateImageInput) Result {
	if input.Prompt == "" {
		return Failure(ErrCodeValidation, "prompt cannot be empty")
	}

	it.logger.Info("generateImage called", "prompt_length", len(input.Prompt))

	payload, err := json.Marshal(map[string]any{
		"prompt": input.Prompt,
		"steps":  20,
		"width":  512,
		"height": 512,
	})
	if err != nil {
		return Failuref(ErrCodeInternal, "encoding generation request: %v", err)
	}

	endpoint := it.generateURL + "/sdapi/v1/txt2img"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Failuref(ErrCodeInternal, "building generation request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if it.generateAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+it.generateAPIKey)
	}

	resp, err := it.client.Do(req)
	if err != nil {
		it.logger.Error("image generation request failed", "error", err)
		return Failuref(ErrCodeNetwork, "image generation service unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Failuref(ErrCodeBackend, "image generation service returned status %d", resp.StatusCode)
	}

	var genResp imageGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return Failuref(ErrCodeBackend, "decoding generation response: %v", err)
	}

	if len(genResp.Images) == 0 || genResp.Images[0] == "" {
		return Failure(ErrCodeBackend, "image generation service returned no images")
	}

	it.logger.Info("generateImage succeeded", "image_bytes", len(genResp.Images[0]))
	return Success(
		"Image generated",
		map[string]any{
			"prompt": input.Prompt,
			"image":  "data:image/png;base64," + genResp.Images[0],
		},
	)
}
