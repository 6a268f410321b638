// Package httpapi is the dealer's HTTP ingress: a gorilla/mux router in
// front of the user, transaction, and PSP services.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/decred/slog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/dealererr"
	"github.com/moozedealer/dealer/internal/pspservice"
	"github.com/moozedealer/dealer/internal/txservice"
	"github.com/moozedealer/dealer/internal/userservice"
)

var log slog.Logger = slog.Disabled

// UseLogger binds the package-level logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Server bundles the three actor-facing services the router dispatches
// into.
type Server struct {
	users *userservice.Service
	tx    *txservice.Service
	psp   *pspservice.Service
}

func NewServer(users *userservice.Service, tx *txservice.Service, psp *pspservice.Service) *Server {
	return &Server{users: users, tx: tx, psp: psp}
}

// Router builds the ingress routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/deposit", s.handleDeposit).Methods(http.MethodPost)
	r.HandleFunc("/webhook/eulen_status", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/user/{id}", s.handleGetUser).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	// Operator-facing; not part of the public deposit surface.
	r.HandleFunc("/admin/user/{id}/verify", s.handleAdminVerify).Methods(http.MethodPost)
	return r
}

type registerRequest struct {
	ReferralCode *string `json:"referral_code"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dealererr.New(dealererr.Validation, "BadRequest", err.Error()))
		return
	}
	user, err := s.users.CreateUser(r.Context(), req.ReferralCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": user.ID})
}

type depositRequest struct {
	UserID        string `json:"user_id"`
	Address       string `json:"address"`
	AmountInCents int64  `json:"amount_in_cents"`
	Asset         string `json:"asset"`
	Network       string `json:"network"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dealererr.New(dealererr.Validation, "BadRequest", err.Error()))
		return
	}

	asset, err := assetid.FromHex(req.Asset)
	if err != nil || asset != assetid.DEPIX {
		w.WriteHeader(http.StatusNotImplemented)
		json.NewEncoder(w).Encode(map[string]string{"error": "UnsupportedDepositAsset"})
		return
	}

	deposit, err := s.tx.NewTransaction(r.Context(), req.UserID, req.Address, req.AmountInCents, asset, req.Network)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":            deposit.ID,
		"qr_copy_paste": deposit.QRCopyPaste,
		"qr_image_url":  deposit.QRImageURL,
		"expires_at":    deposit.ExpiresAt,
	})
}

// eulenDepositStatus mirrors the PSP's webhook payload shape.
type eulenDepositStatus struct {
	BankTxID        string `json:"bank_tx_id"`
	BlockchainTxID  string `json:"blockchain_tx_id"`
	CustomerMessage string `json:"customer_message"`
	PayerName       string `json:"payer_name"`
	PayerTaxNumber  string `json:"payer_tax_number"`
	Expiration      string `json:"expiration"`
	PixKey          string `json:"pix_key"`
	QRID            string `json:"qr_id"`
	Status          string `json:"status"`
	ValueInCents    int64  `json:"value_in_cents"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req eulenDepositStatus
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dealererr.New(dealererr.Validation, "BadRequest", err.Error()))
		return
	}
	if err := s.psp.UpdateEulenStatus(r.Context(), req.BankTxID, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": "ok"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	daily, err := s.users.GetUserDailySpending(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	allowed, err := s.users.GetAllowedSpending(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":          user.ID,
		"daily_spending":   daily,
		"allowed_spending": allowed,
		"verified":         user.Verified,
	})
}

func (s *Server) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.users.VerifyUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps every failure to 500 with the error's short code as the
// response detail; cap rejections in particular surface their code
// ("ExceededAllowedTransactionAmount", "ExceededDailyAmount") verbatim.
func writeError(w http.ResponseWriter, err error) {
	detail := err.Error()
	if dErr, ok := dealererr.Of(err); ok {
		detail = dErr.Code
	}
	log.Errorf("httpapi: request failed: %v", err)
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": detail})
}
