package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/koopa0/lakitu/internal/log"
)

// FetchToolsetName is the toolset identifier constant.
const FetchToolsetName = "fetch"

// maxExtractedChars caps the extracted article text so a single page cannot
// flood the model context.
const maxExtractedChars = 8000

// urlValidator defines the SSRF validation behavior required by FetchToolset.
// This is an unexported internal interface following Go best practices.
type urlValidator interface {
	Validate(rawURL string) error
}

// FetchConfig holds page fetcher configuration.
type FetchConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxBodyBytes caps the downloaded page size.
	MaxBodyBytes int64
	// Transport optionally overrides the HTTP transport. Production setup
	// passes the SSRF-safe transport; tests inject a plain one.
	Transport http.RoundTripper
}

// FetchPageInput defines input for the fetchPage tool.
type FetchPageInput struct {
	URL string `json:"url" jsonschema_description:"The http(s) URL of the page to fetch and extract"`
}

// FetchToolset provides the fetchPage tool with built-in SSRF protection.
//
// Security features:
//   - SSRF protection: blocks private IPs, localhost, and cloud metadata endpoints
//   - Resource limits: response size cap, request timeout
type FetchToolset struct {
	validator urlValidator
	client    *http.Client
	maxBody   int64
	logger    log.Logger
}

// NewFetch creates a FetchToolset.
func NewFetch(cfg FetchConfig, validator urlValidator, logger log.Logger) (*FetchToolset, error) {
	if validator == nil {
		return nil, fmt.Errorf("url validator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 2 << 20
	}

	return &FetchToolset{
		validator: validator,
		client: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		maxBody: maxBody,
		logger:  logger,
	}, nil
}

// Name returns the toolset identifier.
func (ft *FetchToolset) Name() string {
	return FetchToolsetName
}

// Tools returns all tools provided by this toolset.
func (ft *FetchToolset) Tools() ([]*ExecutableTool, error) {
	fetch, err := NewTool(
		"fetchPage",
		"Fetch a web page and extract its readable content. Includes SSRF protection (blocks private IPs, localhost, cloud metadata).",
		true, // long running
		ft.FetchPage,
	)
	if err != nil {
		return nil, fmt.Errorf("defining fetchPage: %w", err)
	}
	return []*ExecutableTool{fetch}, nil
}

// FetchPage downloads a page and extracts title, description, and article text.
func (ft *FetchToolset) FetchPage(ctx context.Context, input FetchPageInput) Result {
	if input.URL == "" {
		return Failure(ErrCodeValidation, "url cannot be empty")
	}

	ft.logger.Info("fetchPage called", "url", input.URL)

	// URL security validation (prevent SSRF attacks)
	if err := ft.validator.Validate(input.URL); err != nil {
		ft.logger.Error("fetchPage URL validation failed", "url", input.URL, "error", err)
		return Failuref(ErrCodeSecurity,
			"url validation failed (possible SSRF attempt): %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return Failuref(ErrCodeInternal, "building fetch request: %v", err)
	}
	req.Header.Set("User-Agent", "lakitu/1.0 (page fetcher)")

	resp, err := ft.client.Do(req)
	if err != nil {
		ft.logger.Error("fetchPage request failed", "url", input.URL, "error", err)
		return Failuref(ErrCodeNetwork, "fetch failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Failuref(ErrCodeBackend, "page returned status %d", resp.StatusCode)
	}

	// Limit response size (prevent resource exhaustion)
	body, err := io.ReadAll(io.LimitReader(resp.Body, ft.maxBody))
	if err != nil {
		return Failuref(ErrCodeNetwork, "reading page body: %v", err)
	}

	pageURL, err := url.Parse(input.URL)
	if err != nil {
		return Failuref(ErrCodeValidation, "invalid URL: %v", err)
	}

	title, description := extractMetadata(body)

	text := extractText(body, pageURL)
	truncated := false
	if len(text) > maxExtractedChars {
		text = text[:maxExtractedChars]
		truncated = true
	}

	ft.logger.Info("fetchPage succeeded",
		"url", input.URL,
		"body_bytes", len(body),
		"text_chars", len(text),
		"truncated", truncated)

	return Success(
		fmt.Sprintf("Fetched %s", input.URL),
		map[string]any{
			"url":         input.URL,
			"title":       title,
			"description": description,
			"text":        text,
			"truncated":   truncated,
		},
	)
}

// extractMetadata pulls the page title and meta description with goquery.
// Parse failures degrade to empty strings; the article text is the payload
// that matters.
func extractMetadata(body []byte) (title, description string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	return title, strings.TrimSpace(description)
}

// extractText runs readability extraction to isolate the main article text.
// Falls back to empty string when the page has no extractable article.
func extractText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
