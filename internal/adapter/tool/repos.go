package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
	"courier-ai/internal/infra/tracer"
)

const maxGitHubBody = 4 * 1024 * 1024 // 4 MB

// Repo is one repository search hit.
type Repo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Stars       int    `json:"stars"`
	Language    string `json:"language,omitempty"`
}

// RepoSearchTool searches GitHub repositories sorted by stars.
type RepoSearchTool struct {
	baseURL string
	limit   int
	client  *http.Client
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRepoSearchTool creates the search_repos tool from config.
func NewRepoSearchTool(cfg config.ToolsConfig, logger *slog.Logger) *RepoSearchTool {
	limit := cfg.RepoSearchLimit
	if limit <= 0 {
		limit = 5
	}
	timeout := cfg.RepoSearchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perMin := cfg.RepoSearchPerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &RepoSearchTool{
		baseURL: cfg.RepoSearchBaseURL,
		limit:   limit,
		client:  &http.Client{Timeout: timeout},
		limiter: NewRateLimiter(perMin, time.Minute),
		logger:  logger,
	}
}

func (t *RepoSearchTool) Name() string { return "search_repos" }

func (t *RepoSearchTool) Description() string {
	return "Busca repositorios en GitHub ordenados por estrellas."
}

func (t *RepoSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Texto de busqueda"}
			},
			"required": ["query"]
		}`),
	}
}

type repoSearchParams struct {
	Query string `json:"query"`
}

type githubSearchResponse struct {
	Items []struct {
		FullName        string `json:"full_name"`
		Description     string `json:"description"`
		HTMLURL         string `json:"html_url"`
		StargazersCount int    `json:"stargazers_count"`
		Language        string `json:"language"`
	} `json:"items"`
}

func (t *RepoSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_repos", t.logger, params,
		func(ctx context.Context, span trace.Span, p repoSearchParams) (any, error) {
			if p.Query == "" {
				return ErrResult("query is required")
			}
			if !t.limiter.Allow() {
				return nil, fmt.Errorf("%w: github search budget exhausted", domain.ErrRateLimit)
			}
			span.SetAttributes(tracer.StringAttr("search.query", p.Query))

			repos, err := t.search(ctx, p.Query)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("search.results", len(repos)))
			return repos, nil
		})
}

func (t *RepoSearchTool) search(ctx context.Context, query string) ([]Repo, error) {
	u := fmt.Sprintf("%s/search/repositories?q=%s&sort=stars", t.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: github search: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGitHubBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: github returned %d", domain.ErrRateLimit, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: github returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var parsed githubSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
	}

	items := parsed.Items
	if len(items) > t.limit {
		items = items[:t.limit]
	}
	repos := make([]Repo, 0, len(items))
	for _, it := range items {
		repos = append(repos, Repo{
			Name:        it.FullName,
			Description: it.Description,
			URL:         it.HTMLURL,
			Stars:       it.StargazersCount,
			Language:    it.Language,
		})
	}
	return repos, nil
}

var _ domain.Tool = (*RepoSearchTool)(nil)
