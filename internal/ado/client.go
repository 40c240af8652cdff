package ado

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const apiVersion = "7.0"

// Client is the set of mirror-service operations the engine needs.
type Client interface {
	// QueryByTag returns the ids of work items of the configured project and
	// type carrying every required tag.
	QueryByTag(ctx context.Context, requiredTags []string) ([]int, error)

	// QueryChangedSince returns the ids of work items of the configured
	// project and type changed within the last withinDays days that carry a
	// repo cross-reference tag.
	QueryChangedSince(ctx context.Context, withinDays int) ([]int, error)

	// GetItem fetches a full work item snapshot, relations included.
	GetItem(ctx context.Context, id int) (*WorkItem, error)

	// CreateItem creates a work item of the configured type from a patch set.
	CreateItem(ctx context.Context, ops []PatchOp) (*WorkItem, error)

	// UpdateItem applies a patch set to an existing work item.
	UpdateItem(ctx context.Context, id int, ops []PatchOp) (*WorkItem, error)
}

// HTTPClient allows injecting the HTTP layer in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	OrgURL       string // https://dev.azure.com/<org>
	Token        string // personal access token
	Project      string
	WorkItemType string
	BypassRules  bool
}

// RESTClient implements Client against the work item tracking REST API.
type RESTClient struct {
	cfg        ClientConfig
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewRESTClient builds a REST client. A nil httpClient gets a default with a
// conservative timeout; no retries are layered on top.
func NewRESTClient(cfg ClientConfig, httpClient HTTPClient, logger zerolog.Logger) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTClient{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "ado").Logger(),
	}
}

func (c *RESTClient) QueryByTag(ctx context.Context, requiredTags []string) ([]int, error) {
	var conditions []string
	conditions = append(conditions,
		fmt.Sprintf("[System.TeamProject] = '%s'", escapeWIQL(c.cfg.Project)),
		fmt.Sprintf("[System.WorkItemType] = '%s'", escapeWIQL(c.cfg.WorkItemType)),
	)
	for _, tag := range requiredTags {
		conditions = append(conditions, fmt.Sprintf("[System.Tags] Contains '%s'", escapeWIQL(tag)))
	}
	query := "Select [System.Id] From WorkItems Where " + strings.Join(conditions, " And ")
	return c.runWIQL(ctx, query)
}

func (c *RESTClient) QueryChangedSince(ctx context.Context, withinDays int) ([]int, error) {
	query := fmt.Sprintf(
		"Select [System.Id] From WorkItems Where [System.TeamProject] = '%s' And [System.WorkItemType] = '%s' And [System.Tags] Contains 'GitHub Repo:' And [System.ChangedDate] >= @Today - %d",
		escapeWIQL(c.cfg.Project), escapeWIQL(c.cfg.WorkItemType), withinDays)
	return c.runWIQL(ctx, query)
}

func (c *RESTClient) runWIQL(ctx context.Context, query string) ([]int, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/wiql?api-version=%s",
		strings.TrimSuffix(c.cfg.OrgURL, "/"), url.PathEscape(c.cfg.Project), apiVersion)

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode wiql query: %w", err)
	}

	var result struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, "application/json", body, &result); err != nil {
		return nil, fmt.Errorf("wiql query failed: %w", err)
	}

	ids := make([]int, 0, len(result.WorkItems))
	for _, wi := range result.WorkItems {
		ids = append(ids, wi.ID)
	}
	c.logger.Debug().Int("matches", len(ids)).Msg("wiql query completed")
	return ids, nil
}

func (c *RESTClient) GetItem(ctx context.Context, id int) (*WorkItem, error) {
	endpoint := fmt.Sprintf("%s/_apis/wit/workitems/%d?$expand=relations&api-version=%s",
		strings.TrimSuffix(c.cfg.OrgURL, "/"), id, apiVersion)

	var raw workItemResponse
	if err := c.do(ctx, http.MethodGet, endpoint, "application/json", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get work item %d: %w", id, err)
	}
	return raw.toWorkItem()
}

func (c *RESTClient) CreateItem(ctx context.Context, ops []PatchOp) (*WorkItem, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s?api-version=%s&bypassRules=%t",
		strings.TrimSuffix(c.cfg.OrgURL, "/"), url.PathEscape(c.cfg.Project),
		url.PathEscape(c.cfg.WorkItemType), apiVersion, c.cfg.BypassRules)
	return c.submitPatch(ctx, http.MethodPost, endpoint, ops)
}

func (c *RESTClient) UpdateItem(ctx context.Context, id int, ops []PatchOp) (*WorkItem, error) {
	endpoint := fmt.Sprintf("%s/_apis/wit/workitems/%d?api-version=%s&bypassRules=%t",
		strings.TrimSuffix(c.cfg.OrgURL, "/"), id, apiVersion, c.cfg.BypassRules)
	return c.submitPatch(ctx, http.MethodPatch, endpoint, ops)
}

func (c *RESTClient) submitPatch(ctx context.Context, method, endpoint string, ops []PatchOp) (*WorkItem, error) {
	body, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch set: %w", err)
	}

	var raw workItemResponse
	if err := c.do(ctx, method, endpoint, "application/json-patch+json", body, &raw); err != nil {
		return nil, fmt.Errorf("patch submit failed: %w", err)
	}
	return raw.toWorkItem()
}

func (c *RESTClient) do(ctx context.Context, method, endpoint, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+basicToken(c.cfg.Token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("work item service error: %d - %s", resp.StatusCode, string(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// basicToken encodes a PAT for basic auth with an empty username.
func basicToken(token string) string {
	return base64.StdEncoding.EncodeToString([]byte(":" + token))
}

// escapeWIQL doubles single quotes inside a WIQL string literal.
func escapeWIQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// workItemResponse is the wire shape of a work item.
type workItemResponse struct {
	ID        int            `json:"id"`
	Rev       int            `json:"rev"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations"`
}

func (r *workItemResponse) toWorkItem() (*WorkItem, error) {
	item := &WorkItem{
		ID:        r.ID,
		Rev:       r.Rev,
		Fields:    r.Fields,
		Relations: r.Relations,
	}
	if raw, ok := r.Fields[FieldTags].(string); ok {
		item.Tags = ParseTags(raw)
	}
	if raw, ok := r.Fields[FieldChangedDate].(string); ok {
		changed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("unparseable changed date %q: %w", raw, err)
		}
		item.ChangedDate = changed
	}
	return item, nil
}
