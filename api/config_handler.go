package api

import (
	"net/http"

	"github.com/seenimoa/openseai-risk/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config *config.Config `json:"config"`
}

// handleGetConfig returns the running configuration. The database DSN is
// reported with its password redacted.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	view := *s.cfg
	view.Database.DSN = s.cfg.Database.RedactedDSN()
	view.API.CORSOrigins = append([]string(nil), s.cfg.API.CORSOrigins...)
	writeData(w, http.StatusOK, ConfigResponse{Config: &view})
}
