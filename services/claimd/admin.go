package claimd

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"airdrop/crypto"
	"airdrop/gateway/middleware"
	"airdrop/native/claims"
	"airdrop/storage"
)

type adminStatusResponse struct {
	claims.Stats
	Paused         bool   `json:"paused"`
	Payer          string `json:"payer"`
	Mint           string `json:"mint,omitempty"`
	ReservationTTL string `json:"reservationTTL"`
}

type claimDetailResponse struct {
	Entry   claims.Entry    `json:"entry"`
	History []storage.Event `json:"history"`
}

type sweepResponse struct {
	Released []string `json:"released"`
}

func (s *Server) mountAdmin(r chi.Router) {
	r.Get("/status", s.handleAdminStatus)
	r.Get("/claims/{address}", s.handleAdminClaim)
	r.Post("/release", s.handleAdminRelease)
	r.Post("/sweep", s.handleAdminSweep)
	r.Post("/pause", s.handleAdminPause)
	r.Post("/resume", s.handleAdminResume)
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.issuer.Status()
	ttl := "disabled"
	if status.ReservationTTL > 0 {
		ttl = status.ReservationTTL.String()
	}
	writeJSON(w, http.StatusOK, adminStatusResponse{
		Stats:          status.Stats,
		Paused:         status.Paused,
		Payer:          status.Payer,
		Mint:           s.mint,
		ReservationTTL: ttl,
	})
}

func (s *Server) handleAdminClaim(w http.ResponseWriter, r *http.Request) {
	id, err := crypto.NormalizeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
	store := s.issuer.Store()
	entry, ok := store.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "address not in allocation list")
		return
	}
	history, err := store.History(r.Context(), id)
	if err != nil {
		s.logger.Warn("claim history unavailable", slog.String("address", id), slog.Any("error", err))
		history = []storage.Event{}
	}
	writeJSON(w, http.StatusOK, claimDetailResponse{Entry: entry, History: history})
}

func (s *Server) handleAdminRelease(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeClaimRequest(w, r)
	if !ok {
		return
	}
	entry, err := s.issuer.CancelClaim(r.Context(), req.UserAddress)
	if err != nil {
		s.writeClaimError(w, r, "release", err)
		return
	}
	s.logger.Info("reservation released by operator",
		slog.String("address", entry.CanonicalID),
		slog.String("subject", middleware.SubjectFromContext(r.Context())))
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	released, err := s.issuer.SweepExpired(r.Context())
	if err != nil {
		s.logger.Error("manual sweep failed", slog.String("reason", claims.Outcome(err)), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	ids := make([]string, 0, len(released))
	for _, entry := range released {
		ids = append(ids, entry.CanonicalID)
	}
	writeJSON(w, http.StatusOK, sweepResponse{Released: ids})
}

func (s *Server) handleAdminPause(w http.ResponseWriter, _ *http.Request) {
	s.issuer.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminResume(w http.ResponseWriter, _ *http.Request) {
	s.issuer.Resume()
	w.WriteHeader(http.StatusNoContent)
}
