package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/graphpath/internal/backend"
	eventbus "github.com/hanpama/graphpath/internal/eventbus"
	events "github.com/hanpama/graphpath/internal/events"
	"github.com/hanpama/graphpath/internal/graph"
	reqid "github.com/hanpama/graphpath/internal/reqid"
	"github.com/hanpama/graphpath/internal/router"
	"github.com/hanpama/graphpath/internal/store"
)

// mockModel records the context and path sets of every Get.
type mockModel struct {
	ctx    context.Context
	sets   []router.PathSet
	result router.Result
	err    error
}

func (m *mockModel) Get(ctx context.Context, sets []router.PathSet) (router.Result, error) {
	m.ctx, m.sets = ctx, sets
	return m.result, m.err
}

func postJSON(t *testing.T, h http.Handler, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/model.json", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestModelGet_EndToEnd(t *testing.T) {
	s, err := store.Default()
	require.NoError(t, err)
	h := New(router.New(backend.NewMemory(s), s))

	q := url.Values{}
	q.Set("method", "get")
	q.Set("paths", `[["juno","resource","person","_1","name",{"from":0,"to":2},"value"],["juno","elsewhere",0]]`)
	req := httptest.NewRequest("GET", "/model.json?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	want := map[string]any{
		"jsonGraph": map[string]any{
			"juno": map[string]any{
				"resource": map[string]any{
					"person": map[string]any{
						"_1": map[string]any{
							"name": map[string]any{
								"0": map[string]any{"value": map[string]any{"$type": "atom", "value": "name value 0"}},
								"1": map[string]any{"value": map[string]any{"$type": "atom"}},
								"2": map[string]any{"value": map[string]any{"$type": "atom"}},
							},
						},
					},
				},
			},
		},
		"unhandledPaths": []any{[]any{"juno", "elsewhere", float64(0)}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestModelGet_PostFormsAgree(t *testing.T) {
	m := &mockModel{result: router.Result{Values: []graph.PathValue{
		{Path: graph.TypesLengthPath("juno"), Value: 2},
	}}}
	h := New(m)
	paths := `[["juno","types","length"]]`

	w := postJSON(t, h, `{"method":"get","paths":`+paths+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fromJSON := w.Body.String()

	form := url.Values{"method": {"get"}, "paths": {paths}}
	req := httptest.NewRequest("POST", "/model.json", bytes.NewBufferString(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	fw := httptest.NewRecorder()
	h.ServeHTTP(fw, req)
	require.Equal(t, http.StatusOK, fw.Code, fw.Body.String())
	require.JSONEq(t, fromJSON, fw.Body.String())
	require.JSONEq(t, `{"jsonGraph":{"juno":{"types":{"length":2}}},"unhandledPaths":[]}`, fromJSON)
	require.Len(t, m.sets, 1)
}

func TestModelGet_BadRequests(t *testing.T) {
	h := New(&mockModel{})
	for name, tc := range map[string]struct {
		body string
		msg  string
	}{
		"invalid json":   {`{"method":`, "invalid JSON"},
		"missing method": {`{"paths":[["juno"]]}`, "missing 'method'"},
		"set":            {`{"method":"set","paths":[["juno"]]}`, `unsupported method "set"`},
		"missing paths":  {`{"method":"get"}`, "missing 'paths'"},
		"bad path set":   {`{"method":"get","paths":[["juno",true]]}`, ""},
	} {
		t.Run(name, func(t *testing.T) {
			w := postJSON(t, h, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			errs, _ := body["errors"].([]any)
			require.Len(t, errs, 1)
			if tc.msg != "" {
				require.Equal(t, tc.msg, errs[0].(map[string]any)["message"])
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(&mockModel{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("DELETE", "/model.json", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", w.Code)
	}
}

func TestModelErrorStatus(t *testing.T) {
	h := New(&mockModel{err: context.DeadlineExceeded})
	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 got %d", w.Code)
	}
}

func TestForwardedHeaders(t *testing.T) {
	m := &mockModel{}
	h := New(m, WithMetadataHeaders("X-Test"))

	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`, "X-Test", "abc", "X-Other", "nope")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	captured, _ := metadata.FromOutgoingContext(m.ctx)
	if captured == nil || captured.Get("x-test")[0] != "abc" || len(captured.Get("x-other")) > 0 {
		t.Fatalf("metadata not propagated correctly: %v", captured)
	}
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	m := &mockModel{}
	h := New(m)

	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`, "X-Test", "abc")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	captured, _ := metadata.FromOutgoingContext(m.ctx)
	if captured != nil && len(captured.Get("x-test")) > 0 {
		t.Fatalf("header should not be forwarded by default: %v", captured)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := New(&mockModel{}, WithCORS("*"))

	// simple request
	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`, "Origin", "http://example.com")
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/model.json", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestCORSSpecificOrigin(t *testing.T) {
	h := New(&mockModel{}, WithCORS("http://app.example"))
	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`, "Origin", "http://app.example")
	require.Equal(t, "http://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	w = postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`, "Origin", "http://evil.example")
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaxBodyBytes(t *testing.T) {
	h := New(&mockModel{}, WithMaxBodyBytes(10))
	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	m := &mockModel{}
	h := New(m)

	w := postJSON(t, h, `{"method":"get","paths":[["juno","types","length"]]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	capturedID, _ := reqid.FromContext(m.ctx)
	if capturedID == 0 {
		t.Fatalf("missing request id in context")
	}
	capturedMD, _ := metadata.FromOutgoingContext(m.ctx)
	if got := capturedMD.Get(RequestIDHeader); len(got) == 0 || got[0] != strconv.FormatInt(capturedID, 10) {
		t.Fatalf("metadata mismatch: %v id %d", capturedMD, capturedID)
	}
}

func TestPublishesHTTPFinish(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var finishes []events.HTTPFinish
	eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) { finishes = append(finishes, e) })

	m := &mockModel{result: router.Result{Unhandled: []router.PathSet{{router.Keys("nope")}}}}
	h := New(m)
	postJSON(t, h, `{"method":"get","paths":[["juno","types","length"],["nope"]]}`)

	require.Len(t, finishes, 1)
	require.Equal(t, http.StatusOK, finishes[0].Status)
	require.Equal(t, 2, finishes[0].Paths)
	require.Equal(t, 1, finishes[0].Unhandled)
}
