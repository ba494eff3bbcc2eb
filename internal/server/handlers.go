package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/patch"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tripKey
)

func userFrom(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

func tripFrom(ctx context.Context) *model.Trip {
	v, _ := ctx.Value(tripKey).(*model.Trip)
	return v
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			writeStatus(w, http.StatusUnauthorized, "unauthorized", UserHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// tripOwner loads the trip named in the path. Trips owned by another user
// are reported as missing.
func (s *Server) tripOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trip, err := s.store.GetTrip(r.Context(), chi.URLParam(r, "tripID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if trip.UserID != userFrom(r.Context()) {
			writeStatus(w, http.StatusNotFound, "not_found", "trip not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tripKey, trip)))
	})
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:  "request validation failed",
			Code:   "invalid_request",
			Issues: validationIssues(err),
		})
		return false
	}
	return true
}

type createTripRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Timezone string `json:"timezone" validate:"required,timezone"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if !s.decode(w, r, &req) {
		return
	}
	trip := &model.Trip{
		UserID:   userFrom(r.Context()),
		Title:    strings.TrimSpace(req.Title),
		Timezone: req.Timezone,
	}
	if err := s.store.CreateTrip(r.Context(), trip); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tripFrom(r.Context()))
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	var filter store.ItemFilter
	if raw := r.URL.Query().Get("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := model.ItemState(strings.ToUpper(strings.TrimSpace(part)))
			if !st.Valid() {
				writeStatus(w, http.StatusBadRequest, "invalid_state", "unknown item state "+part)
				return
			}
			filter.States = append(filter.States, st)
		}
	}
	items, err := s.store.ListItems(r.Context(), tripFrom(r.Context()).ID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.TripItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleConfirmItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.engine.ConfirmItem(r.Context(), tripFrom(r.Context()).ID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req patch.IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.TripID = tripFrom(r.Context()).ID
	res, err := s.engine.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.ListPending(r.Context(), tripFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []model.PendingAction{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleResolvePending(w http.ResponseWriter, r *http.Request) {
	var req patch.ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.TripID = tripFrom(r.Context()).ID
	req.PendingID = chi.URLParam(r, "pendingID")
	res, err := s.engine.ResolvePending(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiscardPending(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.DiscardPending(r.Context(), tripFrom(r.Context()).ID, chi.URLParam(r, "pendingID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		TripID: tripFrom(r.Context()).ID,
		Kind:   model.RunKind(strings.ToUpper(q.Get("kind"))),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeStatus(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeStatus(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.ReconstructRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}
