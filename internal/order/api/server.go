// Package api is the order service's HTTP front end: a chi router with a
// middleware stack, json200/jsonErr response helpers, and an auth-gated
// route group wired to internal/order/usecase.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/auth"
	"github.com/metalalive/ecommerce-go/internal/idutil"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/order/usecase"
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

	r.Post("/account/register", s.registerBuyer)
	r.Post("/account/login", s.loginBuyer)

	r.Group(func(r chi.Router) {
		r.Use(s.keystore.Middleware(func(w http.ResponseWriter, detail string) {
			jsonErr(w, http.StatusForbidden, detail)
		}))

		r.Post("/orders", s.createOrder)
		r.Patch("/orders/{oid}/contact", s.patchContact)
		r.Post("/orders/{oid}/returns", s.returnLines)
		r.Put("/products/{sid}/{pid}/policy", s.editProductPolicy)
		r.Get("/cart/{seq}", s.getCart)
		r.Put("/cart/{seq}", s.modifyCart)
	})

	return r
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	principal, _ := auth.FromContext(r.Context())
	req.BuyerID = principal.UserID
	orderID := newOrderID()
	lineErrs, err := s.svc.CreateOrder(r.Context(), time.Now().UTC(), orderID, req)
	if err != nil {
		writeApperr(w, err)
		return
	}
	if len(lineErrs) > 0 {
		json200(w, map[string]any{"errors": lineErrs})
		return
	}
	json200(w, map[string]any{"order_id": orderID})
}

type patchContactRequest struct {
	Billing  *model.Contact `json:"billing"`
	Shipping *model.Contact `json:"shipping"`
}

func (s *Server) patchContact(w http.ResponseWriter, r *http.Request) {
	var req patchContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	oid := chi.URLParam(r, "oid")
	if err := s.svc.UpdateContact(r.Context(), usecase.UpdateContactRequest{
		OrderID: oid, Billing: req.Billing, Shipping: req.Shipping,
	}); err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

type returnLinesRequest struct {
	PID          model.ProductID `json:"pid"`
	At           time.Time       `json:"at"`
	Qty          uint32          `json:"qty"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

func (s *Server) returnLines(w http.ResponseWriter, r *http.Request) {
	var req returnLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	oid := chi.URLParam(r, "oid")
	err := s.svc.AddReturn(r.Context(), time.Now().UTC(), usecase.AddReturnRequest{
		OrderID: oid, PID: req.PID, At: req.At, Qty: req.Qty, RefundAmount: req.RefundAmount,
	})
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

func (s *Server) editProductPolicy(w http.ResponseWriter, r *http.Request) {
	var req usecase.EditProductPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.svc.EditProductPolicy(r.Context(), req); err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

type registerBuyerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	BuyerID  uint32 `json:"buyer_id"`
}

func (s *Server) registerBuyer(w http.ResponseWriter, r *http.Request) {
	var req registerBuyerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.svc.RegisterBuyer(r.Context(), req.Email, req.BuyerID, req.Password); err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, map[string]string{"status": "registered"})
}

type loginBuyerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) loginBuyer(w http.ResponseWriter, r *http.Request) {
	var req loginBuyerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	buyerID, err := s.svc.AuthenticateBuyer(r.Context(), req.Email, req.Password)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, map[string]uint32{"buyer_id": buyerID})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	seq := parseUintParam(chi.URLParam(r, "seq"))
	cart, err := s.svc.GetCart(r.Context(), principal.UserID, seq)
	if err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, cart)
}

func (s *Server) modifyCart(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	var cart usecase.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	cart.BuyerID = principal.UserID
	cart.SeqNo = parseUintParam(chi.URLParam(r, "seq"))
	if err := s.svc.ModifyCart(r.Context(), cart); err != nil {
		writeApperr(w, err)
		return
	}
	json200(w, map[string]string{"status": "ok"})
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

func newOrderID() string {
	id := uuid.New()
	var b [16]byte
	copy(b[:], id[:])
	return idutil.EncodeOrderID(b)
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
