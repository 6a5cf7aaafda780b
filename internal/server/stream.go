package server

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

// writeTimeout bounds each stream write. A stale client times out and is
// dropped without affecting other streams.
const writeTimeout = 2 * time.Second

// handleStream is the realtime update gateway: one long-lived response per
// client, newline-delimited JSON events. The client receives one
// initialState snapshot, then every delta published for its session until
// it disconnects.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identify(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := s.states.Bus().Subscribe(id.SessionID)
	defer cancel()

	total := s.streamClients.Add(1)
	defer s.streamClients.Add(-1)
	log.Debug().
		Str("sessionId", id.SessionID).
		Int64("streamClients", total).
		Msg("Stream client connected")

	rc := http.NewResponseController(w)
	write := func(ev models.StreamEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal stream event")
			return true
		}
		_ = rc.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := w.Write(append(data, '\n')); err != nil {
			log.Debug().
				Str("sessionId", id.SessionID).
				Err(err).
				Msg("Stream write failed, dropping client")
			return false
		}
		flusher.Flush()
		return true
	}

	snapshot := models.StreamEvent{
		Type: models.EventInitialState,
		Data: s.states.StatesByEmail(id.Email),
	}
	if !write(snapshot) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("sessionId", id.SessionID).Msg("Stream client disconnected")
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if !write(ev) {
				return
			}
		}
	}
}
