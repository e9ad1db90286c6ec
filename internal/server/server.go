package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	eventbus "github.com/hanpama/graphpath/internal/eventbus"
	events "github.com/hanpama/graphpath/internal/events"
	"github.com/hanpama/graphpath/internal/graph"
	reqid "github.com/hanpama/graphpath/internal/reqid"
	"github.com/hanpama/graphpath/internal/router"
)

// RequestIDHeader is the outgoing metadata key carrying the request id.
const RequestIDHeader = "x-graphpath-request-id"

// Model answers path sets. *router.Router implements it.
type Model interface {
	Get(ctx context.Context, sets []router.PathSet) (router.Result, error)
}

// Handler is an http.Handler that serves a JSON Graph model endpoint.
// It parses get requests, resolves them against the model, and writes the
// merged jsonGraph envelope.
type Handler struct {
	model Model
	opt   Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithLogger(l *zap.Logger) Option    { return func(o *Options) { o.Logger = l } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a model handler over m.
func New(m Model, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, Logger: zap.NewNop()}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{model: m, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	var (
		status    = http.StatusOK
		paths     int
		unhandled int
		start     = time.Now()
	)
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			Request:   r,
			Status:    status,
			Paths:     paths,
			Unhandled: unhandled,
			Duration:  time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse("method not allowed"), h.opt.Pretty)
		return
	}

	// Map configured headers into metadata
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[RequestIDHeader] = []string{strconv.FormatInt(rid, 10)}
	ctx = metadata.NewOutgoingContext(ctx, md)

	req, rerr := parseRequest(r, h.opt.MaxBodyBytes)
	if rerr != nil {
		status = http.StatusBadRequest
		if rerr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(rerr.Message), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	sets, err := router.ParsePathSets(req.Paths)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, errorResponse(err.Error()), h.opt.Pretty)
		return
	}
	paths = len(sets)

	res, err := h.model.Get(ctx, sets)
	if err != nil {
		status = http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.opt.Logger.Warn("model request aborted",
			zap.String("request_id", reqid.String(ctx)),
			zap.Int("paths", paths),
			zap.Error(err))
		writeJSON(w, status, errorResponse(err.Error()), h.opt.Pretty)
		return
	}
	unhandled = len(res.Unhandled)
	writeJSON(w, status, toEnvelope(res), h.opt.Pretty)
}

// ------------------ Request parsing ------------------

// ModelRequest is the body of a POST to the model endpoint. Paths holds the
// raw decoded path sets.
type ModelRequest struct {
	Method string `json:"method"`
	Paths  []any  `json:"paths"`
}

type requestError struct {
	Message string
}

func parseRequest(r *http.Request, maxBody int64) (ModelRequest, *requestError) {
	if r.Method == http.MethodGet {
		return parseForm(r.URL.Query())
	}

	// POST
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return ModelRequest{}, &requestError{Message: "failed to read body"}
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return ModelRequest{}, &requestError{Message: errBodyTooLargeMessage}
	}

	ct := r.Header.Get("Content-Type")
	switch {
	case ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;"):
		var req ModelRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return ModelRequest{}, &requestError{Message: "invalid JSON"}
		}
		return checkRequest(req)
	case ct == "application/x-www-form-urlencoded" || strings.HasPrefix(ct, "application/x-www-form-urlencoded;"):
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return ModelRequest{}, &requestError{Message: "invalid form body"}
		}
		return parseForm(form)
	}
	return ModelRequest{}, &requestError{Message: "unsupported Content-Type"}
}

// parseForm reads method and paths from query or form values, paths being
// a JSON array.
func parseForm(v url.Values) (ModelRequest, *requestError) {
	req := ModelRequest{Method: v.Get("method")}
	if p := v.Get("paths"); p != "" {
		if err := json.Unmarshal([]byte(p), &req.Paths); err != nil {
			return ModelRequest{}, &requestError{Message: "invalid 'paths' JSON"}
		}
	}
	return checkRequest(req)
}

func checkRequest(req ModelRequest) (ModelRequest, *requestError) {
	switch {
	case req.Method == "":
		return ModelRequest{}, &requestError{Message: "missing 'method'"}
	case req.Method != "get":
		return ModelRequest{}, &requestError{Message: "unsupported method " + strconv.Quote(req.Method)}
	case len(req.Paths) == 0:
		return ModelRequest{}, &requestError{Message: "missing 'paths'"}
	}
	return req, nil
}

// ------------------ Response formatting ------------------

// Envelope is the response to a get request.
type Envelope struct {
	JSONGraph      map[string]any   `json:"jsonGraph"`
	UnhandledPaths []router.PathSet `json:"unhandledPaths"`
}

func toEnvelope(res router.Result) Envelope {
	env := Envelope{
		JSONGraph:      graph.JSONGraph(res.Values),
		UnhandledPaths: res.Unhandled,
	}
	if env.UnhandledPaths == nil {
		env.UnhandledPaths = []router.PathSet{}
	}
	return env
}

type errorMessage struct {
	Message string `json:"message"`
}

type errorBody struct {
	Errors []errorMessage `json:"errors"`
}

func errorResponse(msg string) errorBody {
	return errorBody{Errors: []errorMessage{{Message: msg}}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
