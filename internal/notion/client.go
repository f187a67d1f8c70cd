// Package notion is the hosted external store: a Notion database accessed
// through the public REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/publish"
)

const (
	// DefaultBaseURL is the Notion API root.
	DefaultBaseURL = "https://api.notion.com/v1"

	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	DatabaseID string
	Timeout    time.Duration
}

// Client implements publish.Store for one Notion database.
type Client struct {
	baseURL    string
	token      string
	databaseID string
	httpClient *http.Client

	// types caches property name -> type after the first schema read.
	types map[string]string
}

var _ publish.Store = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		databaseID: cfg.DatabaseID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is an error object returned by the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion %s (%d): %s", e.Code, e.Status, e.Message)
}

type propertySchema struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type database struct {
	ID         string                    `json:"id"`
	Properties map[string]propertySchema `json:"properties"`
}

type page struct {
	ID         string                     `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type queryResponse struct {
	Results []page `json:"results"`
}

// EnsureSchema adds or retypes database properties so every name in
// properties exists with its type. The database's title property is renamed
// when properties declares a title under another name. No request is sent
// when the schema already matches.
func (c *Client) EnsureSchema(ctx context.Context, properties map[string]string) error {
	var db database
	if err := c.do(ctx, http.MethodGet, "/databases/"+c.databaseID, nil, &db); err != nil {
		return fmt.Errorf("get database: %w", err)
	}

	c.remember(db)
	changes := map[string]any{}
	for name, typ := range properties {
		existing, ok := db.Properties[name]
		if ok && existing.Type == typ {
			continue
		}
		if typ == "title" {
			if current, found := titleProperty(db); found && current != name {
				changes[current] = map[string]any{"name": name}
				continue
			}
		}
		changes[name] = map[string]any{typ: map[string]any{}}
	}
	if len(changes) == 0 {
		return nil
	}

	var updated database
	if err := c.do(ctx, http.MethodPatch, "/databases/"+c.databaseID, map[string]any{"properties": changes}, &updated); err != nil {
		return fmt.Errorf("update database schema: %w", err)
	}
	c.remember(updated)
	for name, typ := range properties {
		c.types[name] = typ
	}
	return nil
}

func (c *Client) remember(db database) {
	c.types = make(map[string]string, len(db.Properties))
	for name, p := range db.Properties {
		c.types[name] = p.Type
	}
}

func titleProperty(db database) (string, bool) {
	for name, p := range db.Properties {
		if p.Type == "title" {
			return name, true
		}
	}
	return "", false
}

// Find queries the database with one OR filter over the Identity property
// and every fallback. A page whose Identity matches wins over a page found
// through a fallback.
func (c *Client) Find(ctx context.Context, l publish.Lookup) (string, bool, error) {
	var clauses []any
	if l.Key != "" {
		clauses = append(clauses, richTextEquals(model.PropertyIdentity, l.Key))
	}
	for _, fb := range l.Fallbacks {
		if fb.Value != "" {
			clauses = append(clauses, richTextEquals(fb.Property, fb.Value))
		}
	}
	if len(clauses) == 0 {
		return "", false, nil
	}

	body := map[string]any{
		"filter":    map[string]any{"or": clauses},
		"page_size": 10,
	}
	var resp queryResponse
	if err := c.do(ctx, http.MethodPost, "/databases/"+c.databaseID+"/query", body, &resp); err != nil {
		return "", false, fmt.Errorf("query database: %w", err)
	}
	if len(resp.Results) == 0 {
		return "", false, nil
	}
	for _, p := range resp.Results {
		if l.Key != "" && plainText(p.Properties[model.PropertyIdentity]) == l.Key {
			return p.ID, true, nil
		}
	}
	return resp.Results[0].ID, true, nil
}

func richTextEquals(property, value string) map[string]any {
	return map[string]any{
		"property":  property,
		"rich_text": map[string]any{"equals": value},
	}
}

// Create adds a page to the database.
func (c *Client) Create(ctx context.Context, values map[string]string) (string, error) {
	props, err := c.encode(ctx, values)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": props,
	}
	var p page
	if err := c.do(ctx, http.MethodPost, "/pages", body, &p); err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	if p.ID == "" {
		return "", errors.New("create page: response has no id")
	}
	return p.ID, nil
}

// Update overwrites the given properties of a page.
func (c *Client) Update(ctx context.Context, id string, values map[string]string) error {
	props, err := c.encode(ctx, values)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+id, map[string]any{"properties": props}, nil); err != nil {
		return fmt.Errorf("update page %s: %w", id, err)
	}
	return nil
}

// encode needs the property types. They come from the last schema read and
// are fetched once when EnsureSchema has not run.
func (c *Client) encode(ctx context.Context, values map[string]string) (map[string]any, error) {
	if c.types == nil {
		var db database
		if err := c.do(ctx, http.MethodGet, "/databases/"+c.databaseID, nil, &db); err != nil {
			return nil, fmt.Errorf("get database: %w", err)
		}
		c.remember(db)
	}
	return EncodeProperties(values, c.types)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(payload, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
