package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abcxyz/pkg/logging"
	"github.com/pkgbisect/pkgbisect/pkg/registrydoc"
	"github.com/pkgbisect/pkgbisect/pkg/timeline"
)

const (
	acceptFull    = "application/json"
	acceptCompact = "application/vnd.npm.install-v1+json"
)

// handler forwards every request it receives to cfg.Upstream and rewrites
// any npm package metadata document in the response per cfg.Cutoff, per
// SPEC_FULL.md §4.2 steps 1-8.
type handler struct {
	cfg    Config
	client *http.Client
}

func newHandler(cfg Config) (*handler, error) {
	if cfg.Upstream == "" {
		return nil, fmt.Errorf("proxy: Upstream is required")
	}
	if cfg.Timeline == nil {
		cfg.Timeline = timeline.New()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &handler{cfg: cfg, client: client}, nil
}

// Mux returns the handler's full route table, suitable for passing to
// Server.Start.
func (h *handler) Mux() http.Handler {
	return router(h)
}

func (h *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	logger := logging.FromContext(req.Context())

	// Step 1: fully read the inbound body before doing anything else, so a
	// slow or misbehaving client can't hold the upstream connection open.
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadGateway)
			return
		}
		body = b
	}

	upReq, err := h.buildUpstreamRequest(req, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	upResp, err := h.client.Do(upReq)
	if err != nil {
		logger.ErrorContext(req.Context(), "upstream request failed", "error", err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer upResp.Body.Close()

	respBody, err := io.ReadAll(upResp.Body)
	if err != nil {
		http.Error(w, "failed to read upstream response", http.StatusBadGateway)
		return
	}

	contentType := upResp.Header.Get("Content-Type")
	_, newBody, recordErr := h.rewriteIfMetadata(req.Context(), upReq, contentType, respBody)
	if recordErr != nil {
		logger.WarnContext(req.Context(), "failed to rewrite metadata document", "error", recordErr)
		newBody = respBody
	}

	copyResponseHeaders(w.Header(), upResp.Header, contentType, len(newBody))
	w.WriteHeader(upResp.StatusCode)
	_, _ = w.Write(newBody)
}

// buildUpstreamRequest constructs the request to forward to cfg.Upstream,
// applying step 2 (header normalization). The client's Accept header,
// compact or full, is forwarded as-is: step 5's secondary fetch is the only
// place this proxy asks upstream for a variant the client didn't request.
func (h *handler) buildUpstreamRequest(req *http.Request, body []byte) (*http.Request, error) {
	upstreamURL := strings.TrimSuffix(h.cfg.Upstream, "/") + req.URL.Path
	if req.URL.RawQuery != "" {
		upstreamURL += "?" + req.URL.RawQuery
	}

	upReq, err := http.NewRequestWithContext(req.Context(), req.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	for k, vv := range req.Header {
		switch strings.ToLower(k) {
		case "accept-encoding", "if-none-match", "if-modified-since", "connection", "host":
			continue
		default:
			for _, v := range vv {
				upReq.Header.Add(k, v)
			}
		}
	}

	return upReq, nil
}

// rewriteIfMetadata parses resp bodies that look like a package metadata
// document, records any publication events it observes into cfg.Timeline,
// and rewrites the document to hide anything published after cfg.Cutoff.
// Non-JSON bodies (tarballs, plain errors) pass through untouched.
//
// The compact install-v1 variant carries no per-version Time map, so when
// the upstream response is compact (step 5), a second upstream request is
// issued forcing the full variant, solely to recover its Time map; the
// response returned to the client stays the compact document the client
// asked for.
func (h *handler) rewriteIfMetadata(ctx context.Context, upReq *http.Request, contentType string, body []byte) (bool, []byte, error) {
	switch {
	case strings.Contains(contentType, acceptCompact):
		return h.rewriteCompact(ctx, upReq, body)
	case strings.Contains(contentType, "json"):
		return h.rewriteFull(body)
	default:
		return false, body, nil
	}
}

func (h *handler) rewriteFull(body []byte) (bool, []byte, error) {
	var doc registrydoc.Document
	if err := json.Unmarshal(body, &doc); err != nil || doc.Name == "" {
		return false, body, nil
	}

	h.recordEvents(&doc)

	changed := registrydoc.Rewrite(&doc, h.cfg.Cutoff)

	out, err := json.Marshal(&doc)
	if err != nil {
		return false, body, fmt.Errorf("marshal rewritten document: %w", err)
	}
	return changed, out, nil
}

func (h *handler) rewriteCompact(ctx context.Context, upReq *http.Request, body []byte) (bool, []byte, error) {
	var doc registrydoc.AbbreviatedDocument
	if err := json.Unmarshal(body, &doc); err != nil || doc.Name == "" {
		return false, body, nil
	}

	fullReq, err := http.NewRequestWithContext(ctx, upReq.Method, upReq.URL.String(), nil)
	if err != nil {
		return false, body, fmt.Errorf("build full-variant fetch: %w", err)
	}
	fullReq.Header = upReq.Header.Clone()
	fullReq.Header.Set("Accept", acceptFull)

	fullResp, err := h.client.Do(fullReq)
	if err != nil {
		return false, body, fmt.Errorf("fetch full variant for time map: %w", err)
	}
	defer fullResp.Body.Close()

	fullBody, err := io.ReadAll(fullResp.Body)
	if err != nil {
		return false, body, fmt.Errorf("read full-variant response: %w", err)
	}

	var full registrydoc.Document
	if err := json.Unmarshal(fullBody, &full); err != nil || full.Name == "" {
		return false, body, fmt.Errorf("parse full-variant response: %w", err)
	}

	h.recordEvents(&full)

	changed := registrydoc.RewriteAbbreviated(&doc, full.Time, h.cfg.Cutoff)

	out, err := json.Marshal(&doc)
	if err != nil {
		return false, body, fmt.Errorf("marshal rewritten abbreviated document: %w", err)
	}
	return changed, out, nil
}

// recordEvents feeds every (version, publish time) pair a metadata document
// carries into the proxy's timeline, per SPEC_FULL.md §5's accumulator.
func (h *handler) recordEvents(doc *registrydoc.Document) {
	for version := range doc.Versions {
		if registrydoc.IsReservedTimeKey(version) {
			continue
		}
		raw, ok := doc.Time[version]
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		h.cfg.Timeline.Record(timeline.Event{
			Package: doc.Name,
			Version: version,
			Time:    ts,
		})
	}
}

// copyResponseHeaders copies upstream headers to w, fixing up the ones that
// no longer describe the (possibly rewritten) body correctly. The original
// upstream Content-Type is preserved even when the body was rewritten: the
// client gets back whatever variant it asked for (full or compact), never a
// variant swap.
func copyResponseHeaders(dst http.Header, src http.Header, contentType string, bodyLen int) {
	for k, vv := range src {
		switch strings.ToLower(k) {
		case "content-length", "transfer-encoding", "content-encoding", "connection", "content-type":
			continue
		default:
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
	dst.Set("Content-Type", contentType)
	dst.Set("Content-Length", fmt.Sprintf("%d", bodyLen))
}
