package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/enrich"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/schema"
)

func testInput() enrich.Input {
	s := schema.MustLoad()
	return enrich.Input{
		Key: "k1",
		Intrinsic: model.Intrinsic{
			From:        "talent@acme.com",
			Subject:     "Next steps",
			Company:     "Acme",
			ReceivedUTC: "2026-03-01T09:00:00Z",
			Body:        "<html><body><p>Hi,</p><p>Please pick a slot.</p><script>track()</script></body></html>",
		},
		Fields:      s.Fields(),
		NextActions: s.NextActions(),
	}
}

// chatServer answers every completion with content and captures the last
// request body.
func chatServer(t *testing.T, status int, content string, captured *chatRequest) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
			return
		}
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"quota exceeded"}}`, status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, key string) *Client {
	return NewClient(Config{Endpoint: srv.URL + "/v1/chat/completions", Model: "gpt-test", APIKey: key})
}

func TestEnrich_Success(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, http.StatusOK, `{"next_action":"schedule","priority":2,"deadline_utc":null}`, &req)

	got, err := newTestClient(srv, "sk-test").Enrich(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "schedule", got["next_action"])
	assert.Equal(t, json.Number("2"), got["priority"])
	assert.Nil(t, got["deadline_utc"])

	assert.Equal(t, "gpt-test", req.Model)
	assert.Equal(t, "json_object", req.ResponseFormat["type"])
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "Subject: Next steps")
	assert.NotContains(t, req.Messages[1].Content, "track()")
}

func TestEnrich_ResultPassesSchema(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "```json\n{\"next_action\":\"reply\",\"priority\":1}\n```", nil)

	got, err := newTestClient(srv, "sk-test").Enrich(context.Background(), testInput())
	require.NoError(t, err)

	assert.NoError(t, schema.MustLoad().Validate(got))
	assert.Equal(t, "1", schema.Stringify(got["priority"]))
}

func TestEnrich_HTTPError(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, "", nil)

	_, err := newTestClient(srv, "sk-test").Enrich(context.Background(), testInput())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestEnrich_Unauthorized(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "{}", nil)

	_, err := newTestClient(srv, "sk-wrong").Enrich(context.Background(), testInput())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEnrich_NotJSON(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "I think you should reply.", nil)

	_, err := newTestClient(srv, "sk-test").Enrich(context.Background(), testInput())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JSON object")
}

func TestEnrich_Misconfigured(t *testing.T) {
	_, err := NewClient(Config{Model: "gpt-test"}).Enrich(context.Background(), testInput())

	assert.Error(t, err)
}

func TestParseResult(t *testing.T) {
	got, err := ParseResult("  {\"next_action\":\"archive\"}  ")
	require.NoError(t, err)
	assert.Equal(t, "archive", got["next_action"])

	_, err = ParseResult("null")
	assert.Error(t, err)

	_, err = ParseResult("[1,2]")
	assert.Error(t, err)
}

func TestBodyText(t *testing.T) {
	t.Run("plain text keeps lines", func(t *testing.T) {
		assert.Equal(t, "Hello there\nBest, Ana", BodyText("  Hello   there \n\n Best, Ana "))
	})

	t.Run("html reduced to visible text", func(t *testing.T) {
		got := BodyText(`<html><head><title>x</title></head><body><div>Hi Sam,</div><p>Your <b>interview</b> is confirmed.<br>See you</p><style>p{}</style></body></html>`)
		assert.Equal(t, "Hi Sam,\nYour interview is confirmed.\nSee you", got)
	})

	t.Run("clipped", func(t *testing.T) {
		got := BodyText(strings.Repeat("a", MaxBodyRunes+10))
		assert.Len(t, []rune(got), MaxBodyRunes+1)
		assert.True(t, strings.HasSuffix(got, "…"))
	})
}

func TestBuildPrompt(t *testing.T) {
	system, user := BuildPrompt(testInput())

	assert.Contains(t, system, "JSON object")
	assert.Contains(t, user, "- next_action:")
	assert.Contains(t, user, "reply, schedule, submit_materials")
	assert.Contains(t, user, "From: talent@acme.com")
	assert.Contains(t, user, "Please pick a slot.")
}
