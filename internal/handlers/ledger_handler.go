package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tradeops/erp-ledger/internal/ledger"
	"github.com/tradeops/erp-ledger/internal/middleware"
)

const dateLayout = "2006-01-02"

type LedgerHandler struct {
	guard     *ledger.ConsistencyGuard
	view      *ledger.LedgerView
	clients   *ledger.ClientService
	validator *ValidationHelper
}

func NewLedgerHandler(guard *ledger.ConsistencyGuard, view *ledger.LedgerView, clients *ledger.ClientService) *LedgerHandler {
	return &LedgerHandler{
		guard:     guard,
		view:      view,
		clients:   clients,
		validator: NewValidationHelper(),
	}
}

// CreateClient registers a new client
// @Summary Create client
// @Description Register a new client with an empty ledger
// @Tags clients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string} true "Client name"
// @Success 201 {object} models.Client
// @Failure 400 {object} handlers.ErrorResponse
// @Router /clients [post]
func (h *LedgerHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,max=200"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	client, err := h.clients.Create(r.Context(), req.Name, actor)
	if err != nil {
		log.Printf("[CLIENT] Create failed: %v", err)
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusCreated, client)
}

// ListClients returns active clients
// @Summary List clients
// @Description List active clients ordered by recent ledger activity
// @Tags clients
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Client
// @Router /clients [get]
func (h *LedgerHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.List(r.Context())
	if err != nil {
		log.Printf("[CLIENT] List failed: %v", err)
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, clients)
}

// GetLedger returns one page of a client's ledger
// @Summary Get client ledger
// @Description Paginated ledger entries with page-local running balance and aggregate summary
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Param from query string false "Filter from date (YYYY-MM-DD)"
// @Param to query string false "Filter to date (YYYY-MM-DD)"
// @Param page query int false "Page number (1-based)"
// @Param pageSize query int false "Page size (max 100)"
// @Success 200 {object} ledger.LedgerPage
// @Failure 404 {object} handlers.ErrorResponse
// @Router /clients/{clientId}/ledger [get]
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")

	var dateRange *ledger.DateRange
	from, okFrom := parseDateParam(r, "from")
	to, okTo := parseDateParam(r, "to")
	if !okFrom || !okTo {
		SendErrorResponse(w, "Invalid date filter, expected YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}
	if from != nil || to != nil {
		dateRange = &ledger.DateRange{From: from, To: to}
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	result, err := h.view.GetLedger(r.Context(), clientID, dateRange, page, pageSize)
	if err != nil {
		log.Printf("[LEDGER] GetLedger failed for client %s: %v", clientID, err)
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, result)
}

// AddTransaction records a new ledger entry
// @Summary Add transaction
// @Description Atomically insert a ledger entry and update the client aggregate
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Param request body object{kind=string,amount=int64,paid=int64,transactionDate=string,counterparty=string,notes=string,paymentMethod=string} true "Entry"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Failure 409 {object} handlers.ErrorResponse
// @Router /clients/{clientId}/transactions [post]
func (h *LedgerHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	clientID := chi.URLParam(r, "clientId")

	var req struct {
		Kind            string `json:"kind" validate:"required,oneof=CHARGE PAYMENT TRANSFER"`
		Amount          int64  `json:"amount" validate:"gte=0"`
		Paid            int64  `json:"paid" validate:"gte=0"`
		TransactionDate string `json:"transactionDate" validate:"required"`
		Counterparty    string `json:"counterparty"`
		Notes           string `json:"notes"`
		PaymentMethod   string `json:"paymentMethod"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	date, err := time.Parse(dateLayout, req.TransactionDate)
	if err != nil {
		SendErrorResponse(w, "Invalid transactionDate, expected YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}

	entry, err := h.guard.AddTransaction(r.Context(), clientID, ledger.EntryInput{
		Kind:            req.Kind,
		Amount:          req.Amount,
		Paid:            req.Paid,
		TransactionDate: date,
		Counterparty:    req.Counterparty,
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
	}, actor)
	if err != nil {
		log.Printf("[LEDGER] AddTransaction failed for client %s: %v", clientID, err)
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusCreated, entry)
}

// UpdateTransaction applies a partial update to an entry
// @Summary Update transaction
// @Description Atomically update an entry and fully recompute the owning client's aggregate
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Param request body object{amount=int64,paid=int64,transactionDate=string,counterparty=string,notes=string,paymentMethod=string} true "Fields to update"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Router /transactions/{txId} [put]
func (h *LedgerHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	txID := chi.URLParam(r, "txId")

	var req struct {
		Amount          *int64  `json:"amount" validate:"omitempty,gte=0"`
		Paid            *int64  `json:"paid" validate:"omitempty,gte=0"`
		TransactionDate *string `json:"transactionDate"`
		Counterparty    *string `json:"counterparty"`
		Notes           *string `json:"notes"`
		PaymentMethod   *string `json:"paymentMethod"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	patch := ledger.EntryPatch{
		Amount:        req.Amount,
		Paid:          req.Paid,
		Counterparty:  req.Counterparty,
		Notes:         req.Notes,
		PaymentMethod: req.PaymentMethod,
	}
	if req.TransactionDate != nil {
		date, err := time.Parse(dateLayout, *req.TransactionDate)
		if err != nil {
			SendErrorResponse(w, "Invalid transactionDate, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		patch.TransactionDate = &date
	}

	entry, err := h.guard.UpdateTransaction(r.Context(), txID, patch, actor)
	if err != nil {
		log.Printf("[LEDGER] UpdateTransaction failed for %s: %v", txID, err)
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, entry)
}

// DeleteTransaction removes an entry
// @Summary Delete transaction
// @Description Atomically delete an entry and fully recompute the owning client's aggregate
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 204
// @Failure 404 {object} handlers.ErrorResponse
// @Router /transactions/{txId} [delete]
func (h *LedgerHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	txID := chi.URLParam(r, "txId")

	if err := h.guard.DeleteTransaction(r.Context(), txID, actor); err != nil {
		log.Printf("[LEDGER] DeleteTransaction failed for %s: %v", txID, err)
		SendLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteClient soft- or hard-deletes a client
// @Summary Delete client
// @Description Clients with history are marked inactive; clients without are removed
// @Tags clients
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {object} object{mode=string}
// @Failure 404 {object} handlers.ErrorResponse
// @Router /clients/{clientId} [delete]
func (h *LedgerHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	clientID := chi.URLParam(r, "clientId")

	mode, err := h.guard.DeleteClient(r.Context(), clientID, actor)
	if err != nil {
		log.Printf("[CLIENT] DeleteClient failed for %s: %v", clientID, err)
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]string{"mode": mode})
}

// decodeBody reads a single JSON object from the request, capped at 1MB.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func parseDateParam(r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, false
	}
	return &date, true
}
