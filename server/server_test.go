package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/processor"
	"github.com/xhad/veritas/pkg/rag"
	"github.com/xhad/veritas/pkg/research"
)

type answererFunc func(ctx context.Context, req research.Request, progress func(research.Stage)) (*research.Response, error)

func (f answererFunc) RunWithProgress(ctx context.Context, req research.Request, progress func(research.Stage)) (*research.Response, error) {
	return f(ctx, req, progress)
}

type querierFunc func(ctx context.Context, text string) ([]models.DocumentChunk, error)

func (f querierFunc) Query(ctx context.Context, text string) ([]models.DocumentChunk, error) {
	return f(ctx, text)
}

func okAnswer(_ context.Context, req research.Request, progress func(research.Stage)) (*research.Response, error) {
	if progress != nil {
		progress(research.StageEvidence)
		progress(research.StageGenerate)
	}
	return &research.Response{
		Content:       "f\n\na",
		Query:         req.Message,
		Findings:      "f",
		Analysis:      "a",
		Sources:       []models.Source{{Title: "Go", URL: "https://go.dev", Description: research.DefaultSourceDescription}},
		Confidence:    50,
		FlagForReview: true,
	}, nil
}

func noDocuments(context.Context, string) ([]models.DocumentChunk, error) {
	return nil, rag.ErrNoDocuments
}

func newTestServer(t *testing.T, a answererFunc, q querierFunc) *httptest.Server {
	t.Helper()
	if q == nil {
		q = noDocuments
	}
	s := New(Config{
		RequestTimeout: 5 * time.Second,
		Now:            func() time.Time { return time.UnixMilli(1700000000000) },
	}, a, q)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestChat(t *testing.T) {
	got := make(chan research.Request, 1)
	ts := newTestServer(t, func(ctx context.Context, req research.Request, p func(research.Stage)) (*research.Response, error) {
		got <- req
		return okAnswer(ctx, req, p)
	}, nil)

	resp, body := post(t, ts.URL+"/api/chat", `{"message":"what is go?","useResearch":true,"fileUrl":"https://a/b.pdf"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, research.Request{Message: "what is go?", UseResearch: true, FileURL: "https://a/b.pdf"}, <-got)

	assert.Equal(t, "f\n\na", body["content"])
	assert.Equal(t, "what is go?", body["query"])
	assert.Equal(t, float64(50), body["confidence"])
	assert.Equal(t, true, body["flagForReview"])
	sources := body["sources"].([]interface{})
	require.Len(t, sources, 1)
	assert.Equal(t, "Click to view source", sources[0].(map[string]interface{})["description"])
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"empty message", `{"message":""}`, research.ErrEmptyQuery, 400, "Valid message is required"},
		{"malformed json", `{"message":`, nil, 400, "Valid message is required"},
		{"bad document", `{"message":"q","fileUrl":"https://a/x.png"}`,
			fmt.Errorf("%w: %w", research.ErrDocumentIngest, processor.ErrUnsupportedFormat),
			400, "Unable to process the provided document"},
		{"no documents", `{"message":"q"}`, rag.ErrNoDocuments, 400,
			"No document has been uploaded yet. Please upload a file to begin."},
		{"unexpected", `{"message":"q"}`, errors.New("pq: password authentication failed for user admin"), 500,
			"Failed to process request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(context.Context, research.Request, func(research.Stage)) (*research.Response, error) {
				return nil, tt.err
			}, nil)

			resp, body := post(t, ts.URL+"/api/chat", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, map[string]interface{}{"error": tt.wantError}, body)
		})
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, okAnswer, nil)
	resp, err := http.Get(ts.URL + "/api/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t, okAnswer, nil)
	data := `{"query":"go","findings":"f","analysis":"a","limitations":"l","reasoning":"r","sources":[{"title":"Go","url":"https://go.dev"}],"confidence":68}`

	resp, err := http.Post(ts.URL+"/api/export", "application/json", strings.NewReader(`{"format":"markdown","data":`+data+`}`))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="research-1700000000000.md"`, resp.Header.Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(string(raw), "# Research Report: go\n\n## Confidence Score: 68%"))

	resp, err = http.Post(ts.URL+"/api/export", "application/json", strings.NewReader(`{"format":"txt","data":`+data+`}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	for body, want := range map[string]string{
		`{"format":"pdf","data":` + data + `}`:  "PDF export is not supported",
		`{"format":"docx","data":` + data + `}`: "Invalid format",
		`{"format":"markdown"}`:                 "Data and format are required",
		`{"data":` + data + `}`:                 "Data and format are required",
	} {
		resp, out := post(t, ts.URL+"/api/export", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, want, out["error"], body)
	}
}

func TestDocumentSearch(t *testing.T) {
	chunks := []models.DocumentChunk{{Content: "chunk", Score: 0.12}}
	ts := newTestServer(t, okAnswer, func(_ context.Context, text string) ([]models.DocumentChunk, error) {
		if text == "nothing" {
			return nil, nil
		}
		return chunks, nil
	})

	resp, body := post(t, ts.URL+"/api/documents/search", `{"query":"go"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{map[string]interface{}{"content": "chunk", "score": 0.12}}, body["documentChunks"])

	_, body = post(t, ts.URL+"/api/documents/search", `{"query":"nothing"}`)
	assert.Equal(t, []interface{}{}, body["documentChunks"])

	resp, body = post(t, ts.URL+"/api/documents/search", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Valid query is required", body["error"])
}

func TestDocumentSearchBeforeIngest(t *testing.T) {
	ts := newTestServer(t, okAnswer, nil)
	resp, body := post(t, ts.URL+"/api/documents/search", `{"query":"go"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No document has been uploaded yet. Please upload a file to begin.", body["error"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, okAnswer, nil)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(raw))
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketChat(t *testing.T) {
	got := make(chan research.Request, 1)
	ts := newTestServer(t, func(ctx context.Context, req research.Request, p func(research.Stage)) (*research.Response, error) {
		got <- req
		return okAnswer(ctx, req, p)
	}, nil)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "chat",
		"content": "what is go?",
		"data":    map[string]interface{}{"useResearch": true},
	}))

	assert.Equal(t, map[string]interface{}{"type": "status", "content": "Gathering evidence"}, readMessage(t, conn))
	assert.Equal(t, map[string]interface{}{"type": "status", "content": "Generating response"}, readMessage(t, conn))

	final := readMessage(t, conn)
	assert.Equal(t, "response", final["type"])
	assert.Equal(t, "f\n\na", final["content"])
	data := final["data"].(map[string]interface{})
	assert.Equal(t, "what is go?", data["query"])
	assert.True(t, (<-got).UseResearch)
}

func TestWebSocketErrors(t *testing.T) {
	ts := newTestServer(t, func(context.Context, research.Request, func(research.Stage)) (*research.Response, error) {
		return nil, errors.New("boom: internal detail")
	}, nil)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "content": "q"}))
	assert.Equal(t, map[string]interface{}{"type": "error", "content": "Failed to process request"}, readMessage(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	assert.Equal(t, map[string]interface{}{"type": "error", "content": "Unsupported message type"}, readMessage(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, map[string]interface{}{"type": "error", "content": "Malformed message"}, readMessage(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, map[string]interface{}{"type": "pong", "content": ""}, readMessage(t, conn))
}
