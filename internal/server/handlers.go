package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/go-chi/chi/v5"
)

type submitBody struct {
	Query         string `json:"query"`
	ArtifactKey   string `json:"artifact_key"`
	Title         string `json:"title"`
	SubmitterID   string `json:"submitter_id"`
	SubmitterName string `json:"submitter_name"`
	Anonymous     bool   `json:"anonymous"`
}

type decisionBody struct {
	Admin string `json:"admin"`
}

type moderationBody struct {
	Required bool   `json:"required"`
	Actor    string `json:"actor"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	key, title := body.ArtifactKey, body.Title
	if key == "" {
		if body.Query == "" {
			s.fail(w, r, fmt.Errorf("%w: query or artifact_key", shared.ErrMissingArgument))
			return
		}
		if s.fetcher == nil {
			s.fail(w, r, fmt.Errorf("%w: downloads are disabled", shared.ErrServiceUnavailable))
			return
		}
		artifact, err := s.fetcher.Fetch(r.Context(), body.Query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		key = artifact.Key
		if title == "" {
			title = artifact.Title
		}
	}
	if title == "" {
		title = body.Query
	}

	entry, err := s.ledger.Submit(r.Context(), ledger.SubmitRequest{
		RoomID:        chi.URLParam(r, "room"),
		ArtifactKey:   key,
		Title:         title,
		SubmitterID:   body.SubmitterID,
		SubmitterName: body.SubmitterName,
		Anonymous:     body.Anonymous,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.Playlist(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: position must be a number", shared.ErrInvalidInput))
		return
	}
	removed, err := s.ledger.RemoveFromPlaylist(r.Context(), chi.URLParam(r, "room"), position, r.URL.Query().Get("actor"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	list := s.queue.ListPending
	if r.URL.Query().Get("all") == "true" {
		list = s.queue.ListAll
	}
	entries, err := list(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRejected(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.Rejected(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	views, err := s.ledger.SubmitterTracks(r.Context(), r.URL.Query().Get("user"), chi.URLParam(r, "room"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleModeration(w http.ResponseWriter, r *http.Request) {
	var body moderationBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	room := chi.URLParam(r, "room")
	if err := s.ledger.SetModeration(r.Context(), room, body.Required, body.Actor); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": room, "required": body.Required})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.Reconcile(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledger.Entry(r.Context(), chi.URLParam(r, "room"), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) decision(w http.ResponseWriter, r *http.Request) (room, token, admin string, ok bool) {
	var body decisionBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return "", "", "", false
	}
	return chi.URLParam(r, "room"), chi.URLParam(r, "token"), body.Admin, true
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	room, token, admin, ok := s.decision(w, r)
	if !ok {
		return
	}
	entry, err := s.ledger.BeginReview(r.Context(), room, token, admin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	room, token, admin, ok := s.decision(w, r)
	if !ok {
		return
	}
	result, err := s.ledger.Approve(r.Context(), room, token, admin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": result.Entry, "already_applied": result.AlreadyApplied})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	room, token, admin, ok := s.decision(w, r)
	if !ok {
		return
	}
	entry, err := s.ledger.Reject(r.Context(), room, token, admin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	room, token, admin, ok := s.decision(w, r)
	if !ok {
		return
	}
	row, err := s.ledger.Restore(r.Context(), room, token, admin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
