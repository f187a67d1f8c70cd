package testutil

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// NotionToken is the bearer token a NotionServer accepts.
const NotionToken = "secret_test"

// NotionPage is a page held by a NotionServer, with every property reduced
// to its plain value.
type NotionPage struct {
	ID    string
	Props map[string]string
}

// NotionServer is a minimal fake of the Notion REST API for one database:
// database retrieve/update, database query with rich_text equals filters
// joined by "or", page create and page update.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type NotionServer struct {
	*httptest.Server

	DatabaseID string

	mu       sync.Mutex
	schema   map[string]string
	pages    []NotionPage
	nextID   int
	requests []string

	// FailCreate makes page creation fail with a validation error when the
	// created page's title equals a key.
	FailCreate map[string]bool
}

// NewNotionServer starts a fake with a database whose only property is the
// default "Name" title. The server is closed when the test ends.
func NewNotionServer(t *testing.T, databaseID string) *NotionServer {
	t.Helper()
	s := &NotionServer{
		DatabaseID: databaseID,
		schema:     map[string]string{"Name": "title"},
		FailCreate: map[string]bool{},
	}

	r := chi.NewRouter()
	r.Use(s.record, s.authenticate)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/databases/{id}", s.getDatabase)
		r.Patch("/databases/{id}", s.updateDatabase)
		r.Post("/databases/{id}/query", s.queryDatabase)
		r.Post("/pages", s.createPage)
		r.Patch("/pages/{id}", s.updatePage)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to configure clients with.
func (s *NotionServer) BaseURL() string {
	return s.URL + "/v1"
}

// SetSchema replaces the database schema.
func (s *NotionServer) SetSchema(schema map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = maps.Clone(schema)
}

// Schema returns the database schema.
func (s *NotionServer) Schema() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.schema)
}

// SeedPage inserts a page directly and returns its id.
func (s *NotionServer) SeedPage(props map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(props)
}

// Pages returns a copy of every page in creation order.
func (s *NotionServer) Pages() []NotionPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NotionPage, len(s.pages))
	for i, p := range s.pages {
		out[i] = NotionPage{ID: p.ID, Props: maps.Clone(p.Props)}
	}
	return out
}

// Requests returns "METHOD /path" for every request received.
func (s *NotionServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts received requests with the given method and path
// prefix.
func (s *NotionServer) CountRequests(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		m, p, _ := strings.Cut(r, " ")
		if m == method && strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func (s *NotionServer) insert(props map[string]string) string {
	s.nextID++
	id := fmt.Sprintf("page-%04d", s.nextID)
	s.pages = append(s.pages, NotionPage{ID: id, Props: maps.Clone(props)})
	return id
}

func (s *NotionServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *NotionServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+NotionToken {
			notionError(w, http.StatusUnauthorized, "unauthorized", "API token is invalid.")
			return
		}
		if r.Header.Get("Notion-Version") == "" {
			notionError(w, http.StatusBadRequest, "missing_version", "Notion-Version header failed validation.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func notionError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"object":  "error",
		"status":  status,
		"code":    code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *NotionServer) checkDatabase(w http.ResponseWriter, id string) bool {
	if id != s.DatabaseID {
		notionError(w, http.StatusNotFound, "object_not_found", "Could not find database with ID: "+id)
		return false
	}
	return true
}

// databaseJSON must be called with s.mu held.
func (s *NotionServer) databaseJSON() map[string]any {
	props := map[string]any{}
	for name, typ := range s.schema {
		props[name] = map[string]any{"id": name, "name": name, "type": typ, typ: map[string]any{}}
	}
	return map[string]any{"object": "database", "id": s.DatabaseID, "properties": props}
}

func (s *NotionServer) getDatabase(w http.ResponseWriter, r *http.Request) {
	if !s.checkDatabase(w, chi.URLParam(r, "id")) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.databaseJSON())
}

func (s *NotionServer) updateDatabase(w http.ResponseWriter, r *http.Request) {
	if !s.checkDatabase(w, chi.URLParam(r, "id")) {
		return
	}
	var body struct {
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		notionError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, change := range body.Properties {
		if newName, ok := change["name"].(string); ok {
			typ, exists := s.schema[name]
			if !exists {
				notionError(w, http.StatusBadRequest, "validation_error", "no property named "+name)
				return
			}
			delete(s.schema, name)
			s.schema[newName] = typ
			for _, p := range s.pages {
				if v, ok := p.Props[name]; ok {
					delete(p.Props, name)
					p.Props[newName] = v
				}
			}
			continue
		}
		for typ := range change {
			if typ == "title" && s.schema[name] != "title" {
				notionError(w, http.StatusBadRequest, "validation_error", "a database has exactly one title property")
				return
			}
			s.schema[name] = typ
		}
	}
	writeJSON(w, s.databaseJSON())
}

func (s *NotionServer) queryDatabase(w http.ResponseWriter, r *http.Request) {
	if !s.checkDatabase(w, chi.URLParam(r, "id")) {
		return
	}
	var body struct {
		Filter struct {
			Or []struct {
				Property string `json:"property"`
				RichText struct {
					Equals string `json:"equals"`
				} `json:"rich_text"`
			} `json:"or"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		notionError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range body.Filter.Or {
		if s.schema[c.Property] != "rich_text" {
			notionError(w, http.StatusBadRequest, "validation_error", "Could not find property with name or id: "+c.Property)
			return
		}
	}

	results := []any{}
	for _, p := range s.pages {
		for _, c := range body.Filter.Or {
			if p.Props[c.Property] == c.RichText.Equals {
				results = append(results, s.pageJSON(p))
				break
			}
		}
	}
	writeJSON(w, map[string]any{"object": "list", "results": results, "has_more": false})
}

// pageJSON must be called with s.mu held.
func (s *NotionServer) pageJSON(p NotionPage) map[string]any {
	props := map[string]any{}
	for name, v := range p.Props {
		typ := s.schema[name]
		switch typ {
		case "title", "rich_text":
			props[name] = map[string]any{"type": typ, typ: []any{map[string]any{"plain_text": v}}}
		default:
			props[name] = map[string]any{"type": typ}
		}
	}
	return map[string]any{"object": "page", "id": p.ID, "properties": props}
}

func (s *NotionServer) createPage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Parent struct {
			DatabaseID string `json:"database_id"`
		} `json:"parent"`
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		notionError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if !s.checkDatabase(w, body.Parent.DatabaseID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.decode(w, body.Properties)
	if !ok {
		return
	}
	for name, typ := range s.schema {
		if typ == "title" && s.FailCreate[props[name]] {
			notionError(w, http.StatusBadRequest, "validation_error", "body failed validation")
			return
		}
	}
	id := s.insert(props)
	writeJSON(w, map[string]any{"object": "page", "id": id})
}

func (s *NotionServer) updatePage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		notionError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	for i := range s.pages {
		if s.pages[i].ID != id {
			continue
		}
		props, ok := s.decode(w, body.Properties)
		if !ok {
			return
		}
		maps.Copy(s.pages[i].Props, props)
		writeJSON(w, map[string]any{"object": "page", "id": id})
		return
	}
	notionError(w, http.StatusNotFound, "object_not_found", "Could not find page with ID: "+id)
}

// decode reduces request property values to plain strings. It must be
// called with s.mu held.
func (s *NotionServer) decode(w http.ResponseWriter, in map[string]map[string]any) (map[string]string, bool) {
	out := make(map[string]string, len(in))
	for name, value := range in {
		typ, ok := s.schema[name]
		if !ok {
			notionError(w, http.StatusBadRequest, "validation_error", name+" is not a property that exists.")
			return nil, false
		}
		raw, ok := value[typ]
		if !ok {
			notionError(w, http.StatusBadRequest, "validation_error", name+" is expected to be "+typ+".")
			return nil, false
		}
		out[name] = plainValue(raw)
	}
	return out, true
}

func plainValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case []any:
		var b strings.Builder
		for _, item := range v {
			obj, _ := item.(map[string]any)
			text, _ := obj["text"].(map[string]any)
			content, _ := text["content"].(string)
			b.WriteString(content)
		}
		return b.String()
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return name
		}
		if start, ok := v["start"].(string); ok {
			return start
		}
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
