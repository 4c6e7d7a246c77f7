package api

import (
	"io"
	"net/http"

	"go.uber.org/zap"
)

const maxEventBytes = 1 << 20

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scraper == nil {
		s.writeError(w, http.StatusServiceUnavailable, unavailable("scraper").Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.opts.Scraper.Run(r.Context()))
}

func (s *Server) refreshLoans(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scraper == nil {
		s.writeError(w, http.StatusServiceUnavailable, unavailable("scraper").Error())
		return
	}
	summary, err := s.opts.Scraper.RunAndStore(r.Context())
	if err != nil {
		s.logger.Error("refresh failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"records": len(summary.Records),
			"stored":  summary.Stored,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"records":      len(summary.Records),
		"stored":       summary.Stored,
		"snapshot_uri": summary.SnapshotURI,
		"message_id":   summary.MessageID,
	})
}

// storageEvent answers with the forwarder's status code and its body as a JSON string.
func (s *Server) storageEvent(w http.ResponseWriter, r *http.Request) {
	if s.opts.Forwarder == nil {
		s.writeJSON(w, http.StatusInternalServerError, "Error triggering n8n: "+unavailable("forwarder").Error())
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, "Error triggering n8n: "+err.Error())
		return
	}
	res := s.opts.Forwarder.HandleEvent(r.Context(), raw)
	s.writeJSON(w, res.StatusCode, res.Body)
}
