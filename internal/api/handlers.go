package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/caller"
	"github.com/JakeFAU/resort-relay/internal/entries"
)

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	report, err := s.relay.Lookup(r.Context(), r.URL.Query().Get("resort"))
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getWeather(w http.ResponseWriter, r *http.Request) {
	place := strings.TrimSpace(pathParam(r, "place"))
	if place == "" {
		writeError(w, http.StatusBadRequest, "place required")
		return
	}
	report, err := s.relay.Weather(r.Context(), place)
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getFacts(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(pathParam(r, "term"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "term required")
		return
	}
	capsule, err := s.relay.Facts(r.Context(), term)
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, capsule)
}

func (s *Server) writeRelayError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, caller.ErrUnavailable):
		status = http.StatusGatewayTimeout
	case errors.Is(err, caller.ErrMalformed):
		status = http.StatusBadGateway
	}
	s.logger.Warn("hand-off failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeError(w, status, err.Error())
}

func (s *Server) listEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.cfg.Events.Messages()})
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	list, err := s.entries.List(r.Context())
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": list})
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	var draft entries.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	entry, err := s.entries.Create(r.Context(), draft)
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entries.Get(r.Context(), pathParam(r, "entry_id"))
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	var draft entries.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	entry, err := s.entries.Update(r.Context(), pathParam(r, "entry_id"), draft)
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.Delete(r.Context(), pathParam(r, "entry_id")); err != nil {
		s.writeEntryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeEntryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entries.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entries.ErrNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	default:
		s.logger.Error("entries store failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "entries store failed")
	}
}
