package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"symptom-triage/internal/auth"
	"symptom-triage/internal/core"
	"symptom-triage/internal/hospital"
	"symptom-triage/pkg"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSessionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrConversationComplete), errors.Is(err, core.ErrNoPendingQuestion):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnknownOption), errors.Is(err, core.ErrEmptyMessage),
		errors.Is(err, hospital.ErrInvalidHospital):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseLatLng(r *http.Request) (pkg.LatLng, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return pkg.LatLng{}, fmt.Errorf("lat must be a latitude")
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		return pkg.LatLng{}, fmt.Errorf("lng must be a longitude")
	}
	return pkg.LatLng{Lat: lat, Lng: lng}, nil
}

func (s *Server) radius(r *http.Request) float64 {
	if v, err := strconv.ParseFloat(r.URL.Query().Get("radius"), 64); err == nil && v > 0 {
		return v
	}
	return s.searchRadius
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	supabase := "missing"
	if s.supabase {
		supabase = "configured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"supabase":  supabase,
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Medical AI Assistant API is working!",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.Create(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.Latest(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.Load(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req pkg.MessageRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	msgs, err := s.chat.SendMessage(r.Context(), auth.UserID(r.Context()), id, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg.MessagesResponse{SessionID: id, Messages: msgs})
}

func (s *Server) handlePostAnswer(w http.ResponseWriter, r *http.Request) {
	var req pkg.AnswerRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	msgs, err := s.chat.SelectOption(r.Context(), auth.UserID(r.Context()), id, req.Option)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg.MessagesResponse{SessionID: id, Messages: msgs})
}

func (s *Server) handleSessionHospitals(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLatLng(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	found, err := s.chat.Hospitals(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), loc, s.radius(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg.HospitalsResponse{Hospitals: found})
}

func (s *Server) handleFlash(w http.ResponseWriter, r *http.Request) {
	var req pkg.FlashRequest
	if !decode(w, r, &req) {
		return
	}
	summary, err := s.chat.Flash(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAddHospital(w http.ResponseWriter, r *http.Request) {
	if s.hospitals == nil {
		writeError(w, http.StatusServiceUnavailable, "hospital store not configured")
		return
	}
	var req pkg.NewHospital
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.hospitals.AddHospital(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleSearchHospitals(w http.ResponseWriter, r *http.Request) {
	if s.hospitals == nil {
		writeJSON(w, http.StatusOK, pkg.HospitalsResponse{Hospitals: []pkg.Hospital{}})
		return
	}
	loc, err := parseLatLng(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	specialty := strings.TrimSpace(r.URL.Query().Get("specialty"))
	writeJSON(w, http.StatusOK, pkg.HospitalsResponse{
		Specialty: specialty,
		Hospitals: s.hospitals.Search(r.Context(), loc, specialty, s.radius(r)),
	})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	if s.geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding not configured")
		return
	}
	loc, err := s.geocoder.Geocode(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if loc == nil {
		writeError(w, http.StatusNotFound, "address not found")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLatLng(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := "Unknown location"
	if s.geocoder != nil {
		name = s.geocoder.ReverseGeocode(r.Context(), loc)
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeJSON(w, http.StatusOK, pkg.KeysStatus{})
		return
	}
	size, index := s.keys.Status()
	writeJSON(w, http.StatusOK, pkg.KeysStatus{Count: size, Index: index})
}

func (s *Server) handleSetKeys(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	if s.keys == nil {
		writeError(w, http.StatusServiceUnavailable, "key pool not configured")
		return
	}
	var req pkg.KeysRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.keys.SetKeys(r.Context(), req.Keys); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, index := s.keys.Status()
	s.log.Info("api key pool replaced", zap.Int("count", size))
	writeJSON(w, http.StatusOK, pkg.KeysStatus{Count: size, Index: index})
}
