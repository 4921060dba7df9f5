package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/koopa0/lakitu/internal/log"
)

// SearchToolsetName is the toolset identifier constant.
const SearchToolsetName = "search"

// SearchConfig holds the web search backend configuration.
// The backend is a Tavily-style answer API: a keyed POST endpoint that
// returns ranked results and, when it can, a synthesized answer.
type SearchConfig struct {
	// BaseURL is the search API base URL (e.g., https://api.tavily.com).
	BaseURL string
	// APIKey authenticates search requests. An empty key is not a
	// construction error: the tool stays registered and reports a
	// failure Result per call so the model can tell the user.
	APIKey string
	// MaxResults caps returned results per query.
	MaxResults int
	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// SearchWebInput defines input for the searchWeb tool.
type SearchWebInput struct {
	Query      string `json:"query" jsonschema_description:"The web search query"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema_description:"Maximum results to return (1-10, default: 5)"`
}

// SearchToolset provides the searchWeb tool.
type SearchToolset struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *http.Client
	logger     log.Logger
}

// NewSearch creates a SearchToolset.
func NewSearch(cfg SearchConfig, logger log.Logger) (*SearchToolset, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SearchToolset{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Name returns the toolset identifier.
func (st *SearchToolset) Name() string {
	return SearchToolsetName
}

// Tools returns all tools provided by this toolset.
func (st *SearchToolset) Tools() ([]*ExecutableTool, error) {
	search, err := NewTool(
		"searchWeb",
		"Search the web for current information. Returns result titles, URLs, and snippets, plus a short answer when available.",
		true, // long running
		st.SearchWeb,
	)
	if err != nil {
		return nil, fmt.Errorf("defining searchWeb: %w", err)
	}
	return []*ExecutableTool{search}, nil
}

// searchRequest is the JSON body sent to the search API.
type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// searchResponse is the search API result envelope. The answer field
// is empty when the backend could not synthesize one.
type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearchWeb queries the search API.
func (st *SearchToolset) SearchWeb(ctx context.Context, input SearchWebInput) Result {
	if input.Query == "" {
		return Failure(ErrCodeValidation, "query cannot be empty")
	}
	if st.apiKey == "" {
		return Failure(ErrCodeValidation, "web search API key not configured")
	}

	limit := input.MaxResults
	if limit <= 0 || limit > st.maxResults {
		limit = st.maxResults
	}

	st.logger.Info("searchWeb called", "query", input.Query, "limit", limit)

	payload, err := json.Marshal(searchRequest{Query: input.Query, MaxResults: limit})
	if err != nil {
		return Failuref(ErrCodeInternal, "encoding search request: %v", err)
	}

	endpoint := st.baseURL + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Failuref(ErrCodeInternal, "building search request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+st.apiKey)

	resp, err := st.client.Do(req)
	if err != nil {
		st.logger.Error("searchWeb request failed", "query", input.Query, "error", err)
		return Failuref(ErrCodeNetwork, "search service unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Failuref(ErrCodeBackend, "search service returned status %d", resp.StatusCode)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return Failuref(ErrCodeBackend, "decoding search response: %v", err)
	}

	if len(searchResp.Results) == 0 && searchResp.Answer == "" {
		return Failuref(ErrCodeNotFound, "no results found for %q", input.Query)
	}

	if len(searchResp.Results) > limit {
		searchResp.Results = searchResp.Results[:limit]
	}

	results := make([]map[string]any, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Content,
		})
	}

	data := map[string]any{
		"query":   input.Query,
		"results": results,
	}
	if searchResp.Answer != "" {
		data["answer"] = searchResp.Answer
	}

	return Success(
		fmt.Sprintf("Found %d results for %q", len(results), input.Query),
		data,
	)
}
