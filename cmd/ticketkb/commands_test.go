package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/ticketkb/internal/config"
)

var ctxBG = context.Background()

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"Draft not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) find(t *testing.T, method, path string) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, r := range ts.requests {
		if r.Method == method && strings.HasPrefix(r.Path, path) {
			return r
		}
	}
	t.Fatalf("no %s %s request recorded in %+v", method, path, ts.requests)
	return recordedRequest{}
}

// useServer points newAPIClient at ts for the rest of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	origMsg := msgOut
	msgOut = io.Discard
	defer func() {
		rootCmd.SetArgs(nil)
		msgOut = origMsg
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseTags(t *testing.T) {
	got := parseTags(" auth, sso ,,vpn ")
	if len(got) != 3 || got[0] != "auth" || got[2] != "vpn" {
		t.Errorf("parseTags = %v", got)
	}
	if got := parseTags(""); got == nil || len(got) != 0 {
		t.Errorf("parseTags(\"\") = %#v, want empty non-nil", got)
	}
}

func TestResolveServerURL(t *testing.T) {
	cfg := config.Config{Server: config.ServerConfig{Port: 4100}}
	if got := resolveServerURL(cfg); got != "http://127.0.0.1:4100" {
		t.Errorf("resolveServerURL = %q", got)
	}
	serverURL = "http://kb.internal:8080/"
	defer func() { serverURL = "" }()
	if got := resolveServerURL(cfg); got != "http://kb.internal:8080" {
		t.Errorf("resolveServerURL with flag = %q", got)
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.client().get(ctxBG, "/kb/drafts/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var v any
	err = decodeJSON(resp, &v)
	if err == nil || err.Error() != "server returned 404: Draft not found" {
		t.Errorf("err = %v", err)
	}
}

func TestDraftCreateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /kb/drafts/from_ticket": `{"draft_id":"d-1","generated_title":"Cannot Log In","generated_content_markdown":"# Cannot Log In","status":"pending_review"}`,
	})
	useServer(t, ts)

	transcriptPath := filepath.Join(t.TempDir(), "chat.txt")
	os.WriteFile(transcriptPath, []byte("Agent: try clearing the cache\n"), 0o644)

	out, err := execute(t, "draft", "create",
		"--ticket-id", "T-1", "--title", "Cannot log in",
		"--resolution", "Clear cache", "--tags", "auth, sso",
		"--transcript", transcriptPath, "--no-color")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "# Cannot Log In") {
		t.Errorf("output = %q", out)
	}

	r := ts.find(t, http.MethodPost, "/kb/drafts/from_ticket")
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["ticket_id"] != "T-1" || body["resolution_details"] != "Clear cache" {
		t.Errorf("body = %v", body)
	}
	if body["conversation_log"] != "Agent: try clearing the cache" {
		t.Errorf("conversation_log = %v", body["conversation_log"])
	}
	if tags, _ := body["tags"].([]any); len(tags) != 2 || tags[1] != "sso" {
		t.Errorf("tags = %v", body["tags"])
	}
}

func TestDraftCreateCommand_MissingArgs(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	_, err := execute(t, "draft", "create", "--ticket-id", "", "--title", "")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v, want it to mention 'required'", err)
	}
}

func TestLoadTickets(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "t2.html"), []byte("<p>Customer: thanks</p>"), 0o644)

	list := filepath.Join(dir, "list.yaml")
	os.WriteFile(list, []byte(`
- ticket_id: T-1
  title: Cannot log in
  resolution_details: Cleared cache
  tags: [auth]
- ticket_id: T-2
  title: VPN drops
  transcript_file: t2.html
`), 0o644)

	tickets, err := loadTickets(list)
	if err != nil {
		t.Fatalf("loadTickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("got %d tickets", len(tickets))
	}
	if tickets[0].ResolutionDetails != "Cleared cache" || len(tickets[0].Tags) != 1 {
		t.Errorf("ticket[0] = %+v", tickets[0])
	}
	if tickets[1].ConversationLog != "Customer: thanks" {
		t.Errorf("ticket[1].ConversationLog = %q", tickets[1].ConversationLog)
	}

	wrapped := filepath.Join(dir, "wrapped.yaml")
	os.WriteFile(wrapped, []byte("tickets:\n  - ticket_id: T-3\n    title: Printer offline\n"), 0o644)
	tickets, err = loadTickets(wrapped)
	if err != nil {
		t.Fatalf("loadTickets wrapped: %v", err)
	}
	if len(tickets) != 1 || tickets[0].TicketID != "T-3" {
		t.Errorf("tickets = %+v", tickets)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("- ticket_id: T-4\n  transcript_file: missing.txt\n"), 0o644)
	if _, err := loadTickets(bad); err == nil {
		t.Error("expected error for missing transcript file")
	}
}

func TestDraftImportCommand_Remote(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /kb/drafts/from_ticket": `{"draft_id":"d-x","status":"pending_review"}`,
	})
	useServer(t, ts)

	path := filepath.Join(t.TempDir(), "tickets.yaml")
	os.WriteFile(path, []byte("- ticket_id: A\n  title: a\n- ticket_id: B\n  title: b\n- ticket_id: C\n  title: c\n"), 0o644)

	if _, err := execute(t, "draft", "import", path); err != nil {
		t.Fatalf("execute: %v", err)
	}
	ts.mu.Lock()
	n := len(ts.requests)
	ts.mu.Unlock()
	if n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestDraftApproveCommand_DefaultsFromDraft(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /kb/drafts/d-1":         `{"draft_id":"d-1","generated_title":"VPN Drops","generated_content_markdown":"## Resolution Steps\n1. Update","suggested_tags":["vpn"],"status":"pending_review"}`,
		"PUT /kb/drafts/d-1/approve": `{"kb_id":"a-1","title":"VPN Drops","tags":["vpn"]}`,
	})
	useServer(t, ts)

	if _, err := execute(t, "draft", "approve", "d-1"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	r := ts.find(t, http.MethodPut, "/kb/drafts/d-1/approve")
	var body struct {
		Title   string   `json:"final_title"`
		Content string   `json:"final_content_markdown"`
		Tags    []string `json:"final_tags"`
	}
	json.Unmarshal([]byte(r.Body), &body)
	if body.Title != "VPN Drops" || !strings.HasPrefix(body.Content, "## Resolution Steps") {
		t.Errorf("body = %+v", body)
	}
	if len(body.Tags) != 1 || body.Tags[0] != "vpn" {
		t.Errorf("tags = %v", body.Tags)
	}
}

func TestDraftRejectCommand_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	_, err := execute(t, "draft", "reject", "nope", "--feedback", "duplicate")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v", err)
	}
	r := ts.find(t, http.MethodPut, "/kb/drafts/nope/reject")
	if !strings.Contains(r.Body, `"feedback":"duplicate"`) {
		t.Errorf("body = %s", r.Body)
	}
}

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /kb/search": `{"results":[{"kb_id":"a-1","title":"Password Reset","content_snippet":"Use the link.","score":0.91}],"synthesized_answer":"Use the reset link."}`,
	})
	useServer(t, ts)

	out, err := execute(t, "search", "forgot", "password", "--top-k", "2", "--synthesize", "--no-color")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	r := ts.find(t, http.MethodPost, "/kb/search")
	if r.Path != "/kb/search?synthesize_answer=true" {
		t.Errorf("path = %q", r.Path)
	}
	if !strings.Contains(r.Body, `"query":"forgot password"`) || !strings.Contains(r.Body, `"top_k":2`) {
		t.Errorf("body = %s", r.Body)
	}
	for _, want := range []string{"Use the reset link.", "1. Password Reset", "0.910"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
