// Package api is the payment service's HTTP front end, the same
// chi-router shape internal/order/api uses, wired to
// internal/payment/usecase instead.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/auth"
	"github.com/metalalive/ecommerce-go/internal/payment/usecase"
	"github.com/metalalive/ecommerce-go/internal/processor"
)

type Server struct {
	svc      *usecase.Service
	keystore *auth.Keystore
}

func NewServer(svc *usecase.Service, keystore *auth.Keystore) *Server {
	return &Server{svc: svc, keystore: keystore}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json200(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.keystore.Middleware(func(w http.ResponseWriter, detail string) {
			jsonErr(w, http.StatusForbidden, detail)
		}))

		r.Post("/charges", s.createCharge)
		r.Get("/charges/{token}", s.refreshChargeStatus)
		r.Post("/stores/{sid}/charges/{token}/capture", s.captureCharge)
		r.Post("/stores/{sid}/onboard", s.onboardStore)
		r.Patch("/stores/{sid}/onboard", s.refreshOnboard)
		r.Post("/stores/{sid}/orders/{oid}/refund", s.finalizeRefund)
		r.Get("/stores/{sid}/report/charges", s.reportCharges)
	})

	return r
}

func (s *Server) createCharge(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	principal, _ := auth.FromContext(r.Context())
	req.Owner = principal.UserID
	charge, err := s.svc.CreateCharge(r.Context(), time.Now().UTC(), req)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, charge)
}

func (s *Server) refreshChargeStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	token := chi.URLParam(r, "token")
	charge, err := s.svc.RefreshChargeStatus(r.Context(), time.Now().UTC(), principal.UserID, token)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, charge)
}

func (s *Server) captureCharge(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	req := usecase.CaptureChargeRequest{
		ChargeID: chi.URLParam(r, "token"),
		StoreID:  parseUintParam(chi.URLParam(r, "sid")),
		StaffID:  principal.UserID,
	}
	payout, err := s.svc.CaptureCharge(r.Context(), time.Now().UTC(), req)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, payout)
}

func (s *Server) onboardStore(w http.ResponseWriter, r *http.Request) {
	var req processor.MerchantOnboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	storeID := parseUintParam(chi.URLParam(r, "sid"))
	req.StoreID = storeID
	merchant, err := s.svc.OnboardStore(r.Context(), time.Now().UTC(), storeID, req)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, merchant)
}

func (s *Server) refreshOnboard(w http.ResponseWriter, r *http.Request) {
	var req processor.MerchantOnboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	storeID := parseUintParam(chi.URLParam(r, "sid"))
	req.StoreID = storeID
	merchant, err := s.svc.RefreshOnboardStatus(r.Context(), time.Now().UTC(), storeID, req)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, merchant)
}

func (s *Server) finalizeRefund(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	var req usecase.FinalizeRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.StoreID = parseUintParam(chi.URLParam(r, "sid"))
	req.OrderID = chi.URLParam(r, "oid")
	req.StaffID = principal.UserID
	refund, err := s.svc.FinalizeRefund(r.Context(), time.Now().UTC(), req)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, refund)
}

func (s *Server) reportCharges(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	storeID := parseUintParam(chi.URLParam(r, "sid"))
	tr := usecase.ReportTimeRange{From: parseTimeParam(r, "from"), To: parseTimeParam(r, "to")}
	summary, err := s.svc.ReportChargeLines(r.Context(), time.Now().UTC(), storeID, principal.UserID, tr)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, summary)
}

func parseUintParam(s string) uint32 {
	var v uint32
	for _, c := range s {
		if c < '0' || c > '9' {
			return v
		}
		v = v*10 + uint32(c-'0')
	}
	return v
}

func parseTimeParam(r *http.Request, name string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func writeApperr(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		log.Error().Err(err).Msg("unclassified error")
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := ae.CategoryOf().HTTPStatus()
	if status >= 500 {
		log.Error().Str("kind", string(ae.Kind)).Err(ae).Msg("use case failed")
		jsonErr(w, status, "internal error")
		return
	}
	jsonErr(w, status, ae.Error())
}

func json200(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}
