package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/vrmapi/pkg/log"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/storage"
	"github.com/raterudder/vrmapi/pkg/vrm"
)

const maxBodySize = 1 << 20

type nodeStatus struct {
	Name string       `json:"name"`
	Last *node.Result `json:"last,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	nodes := s.nodes.Nodes()
	resp := struct {
		Nodes []nodeStatus `json:"nodes"`
	}{Nodes: make([]nodeStatus, 0, len(nodes))}
	for _, n := range nodes {
		st := nodeStatus{Name: n.Name()}
		if last, ok := n.Last(); ok {
			st.Last = &last
		}
		resp.Nodes = append(resp.Nodes, st)
	}
	writeJSON(w, resp, http.StatusOK)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("node")
	n, ok := s.nodes.Node(name)
	if !ok {
		writeJSONError(w, "unknown node", http.StatusNotFound)
		return
	}

	var msg node.Message
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &msg); err != nil {
			writeJSONError(w, "invalid message: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := n.Handle(ctx, msg)
	if errors.Is(err, node.ErrRateLimited) {
		writeJSON(w, res, http.StatusTooManyRequests)
		return
	}

	if s.publisher != nil {
		if perr := s.publisher.Publish(ctx, name, res); perr != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish result", slog.String("node", name), slog.Any("error", perr))
		}
	}

	var (
		cerr *vrm.ConfigurationError
		lerr *vrm.ContextLookupError
	)
	switch {
	case err == nil:
		if res.Envelope != nil && !res.Envelope.Success {
			writeJSON(w, res, http.StatusBadGateway)
			return
		}
		writeJSON(w, res, http.StatusOK)
	case errors.As(err, &cerr), errors.As(err, &lerr):
		writeJSON(w, res, http.StatusUnprocessableEntity)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "trigger failed", slog.String("node", name), slog.Any("error", err))
		writeJSON(w, res, http.StatusInternalServerError)
	}
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := r.PathValue("scope")
	if !storage.ValidScope(scope) {
		writeJSONError(w, "unknown scope", http.StatusNotFound)
		return
	}

	keys, err := s.store.Keys(ctx, scope)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list context keys", slog.String("scope", scope), slog.Any("error", err))
		writeJSONError(w, "failed to list context", http.StatusInternalServerError)
		return
	}
	values := make(map[string]any, len(keys))
	for _, k := range keys {
		v, found, err := s.store.Get(ctx, scope, k)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get context value", slog.String("scope", scope), slog.String("key", k), slog.Any("error", err))
			writeJSONError(w, "failed to get context", http.StatusInternalServerError)
			return
		}
		if found {
			values[k] = v
		}
	}
	writeJSON(w, values, http.StatusOK)
}

func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := r.PathValue("scope")
	key := r.PathValue("key")
	if !storage.ValidScope(scope) {
		writeJSONError(w, "unknown scope", http.StatusNotFound)
		return
	}
	if key == "" {
		writeJSONError(w, "missing key", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		writeJSONError(w, "value must be JSON", http.StatusBadRequest)
		return
	}
	if err := s.store.Set(ctx, scope, key, v); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set context value", slog.String("scope", scope), slog.String("key", key), slog.Any("error", err))
		writeJSONError(w, "failed to set context", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
