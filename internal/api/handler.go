package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/nodeset-loader/internal/server"
)

// Handler handles REST API requests for the loaded model
type Handler struct {
	serverName string
	srv        *server.Server
	loader     *server.Loader
}

// NewHandler creates an API handler exposing the loaded model
func NewHandler(name string, srv *server.Server, loader *server.Loader) *Handler {
	return &Handler{
		serverName: name,
		srv:        srv,
		loader:     loader,
	}
}

// HandleStatus handles GET /api/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts := make(map[string]int)
	for class, count := range h.loader.Counts() {
		counts[class.String()] = count
	}

	resp := StatusResponse{
		ServerName: h.serverName,
		Serving:    h.srv != nil && h.srv.Serving(),
		Installed:  h.loader.Installed(),
		NodeCounts: counts,
		Namespaces: h.loader.Namespaces(),
	}

	h.writeJSON(w, resp)
}

// HandleNodes handles GET /api/nodes with an optional ?class= filter
func (h *Handler) HandleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	classFilter := r.URL.Query().Get("class")
	nodes := h.loader.Nodes()
	if classFilter != "" {
		filtered := make([]server.NodeSummary, 0, len(nodes))
		for _, n := range nodes {
			if n.Class == classFilter {
				filtered = append(filtered, n)
			}
		}
		nodes = filtered
	}

	h.writeJSON(w, NodeListResponse{Count: len(nodes), Nodes: nodes})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}
