/**
 * @description
 * HTTP handlers for the credits service.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/app"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/catalog"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

// maxRequestBodyBytes caps JSON request bodies.
const maxRequestBodyBytes = 1 << 20

// CreditsService is the application surface the handlers call.
type CreditsService interface {
	ListPackages() app.PackageListing
	CreateCheckout(ctx context.Context, userID, packageID string) (*domain.CheckoutSession, error)
	VerifyPayment(ctx context.Context, userID, sessionID string) (*domain.VerificationResult, error)
	GetBalance(ctx context.Context, userID string) (*domain.ProfileBalance, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	ReconcileLedger(ctx context.Context, limit int) (*domain.ReconciliationReport, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service CreditsService
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service CreditsService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

type packageResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CreditAmount    int64  `json:"creditAmount"`
	PriceMinorUnits int64  `json:"priceMinorUnits"`
	Currency        string `json:"currency"`
	Price           string `json:"price"`
}

type packagesResponse struct {
	Version  string            `json:"version"`
	Packages []packageResponse `json:"packages"`
}

type checkoutRequest struct {
	PackageID string `json:"packageId"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
}

type verifyGrantedResponse struct {
	Success      bool                      `json:"success"`
	CreditsAdded int64                     `json:"creditsAdded"`
	NewBalance   int64                     `json:"newBalance"`
	Transaction  *domain.CreditTransaction `json:"transaction"`
}

type verifyProcessedResponse struct {
	Success     bool                      `json:"success"`
	Message     string                    `json:"message"`
	Transaction *domain.CreditTransaction `json:"transaction"`
}

type verifyNotSettledResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Status  domain.PaymentStatus `json:"status"`
}

type transactionsResponse struct {
	Transactions []domain.CreditTransaction `json:"transactions"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (h *Handler) handleListPackages(w http.ResponseWriter, r *http.Request) {
	listing := h.service.ListPackages()

	resp := packagesResponse{Version: listing.Version, Packages: make([]packageResponse, 0, len(listing.Packages))}
	for _, pkg := range listing.Packages {
		resp.Packages = append(resp.Packages, packageResponse{
			ID:              pkg.ID,
			Name:            pkg.Name,
			CreditAmount:    pkg.CreditAmount,
			PriceMinorUnits: pkg.PriceMinorUnits,
			Currency:        pkg.Currency,
			Price:           catalog.DisplayPrice(pkg.PriceMinorUnits),
		})
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var req checkoutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", app.ErrorCode(app.ErrInvalidRequest))
		return
	}

	session, err := h.service.CreateCheckout(r.Context(), userID, req.PackageID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, checkoutResponse{SessionID: session.ID, URL: session.URL})
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var req verifyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", app.ErrorCode(app.ErrInvalidRequest))
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), userID, req.SessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	switch result.Outcome {
	case domain.OutcomeGranted:
		respondWithJSON(w, http.StatusOK, verifyGrantedResponse{
			Success:      true,
			CreditsAdded: result.CreditsAdded,
			NewBalance:   result.NewBalance,
			Transaction:  result.Transaction,
		})
	case domain.OutcomeAlreadyProcessed:
		respondWithJSON(w, http.StatusOK, verifyProcessedResponse{
			Success:     true,
			Message:     "already processed",
			Transaction: result.Transaction,
		})
	default:
		respondWithJSON(w, http.StatusOK, verifyNotSettledResponse{
			Success: false,
			Message: "Payment not completed",
			Status:  result.PaymentStatus,
		})
	}
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	limit, ok := parseLimit(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "limit must be a positive integer", app.ErrorCode(app.ErrInvalidRequest))
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.CreditTransaction{}
	}

	respondWithJSON(w, http.StatusOK, transactionsResponse{Transactions: transactions})
}

func (h *Handler) handleReconcileLedger(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "limit must be a positive integer", app.ErrorCode(app.ErrInvalidRequest))
		return
	}

	report, err := h.service.ReconcileLedger(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// parseLimit reads ?limit=. A missing value yields 0 so the service applies its default.
func parseLimit(r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return limit, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "code", app.ErrorCode(err), "error", err)
		switch {
		case errors.Is(err, app.ErrProviderUnavailable):
			message = app.ErrProviderUnavailable.Error()
		case errors.Is(err, app.ErrLedgerWriteFailed):
			message = app.ErrLedgerWriteFailed.Error()
		default:
			message = "internal server error"
		}
	}

	respondWithError(w, status, message, app.ErrorCode(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrInvalidRequest),
		errors.Is(err, app.ErrUnknownPackage),
		errors.Is(err, app.ErrSessionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrSessionOwnerMismatch):
		return http.StatusForbidden
	case errors.Is(err, app.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidSessionMetadata):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(w http.ResponseWriter, code int, message, errCode string) {
	respondWithJSON(w, code, errorResponse{Success: false, Error: message, Code: errCode})
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
