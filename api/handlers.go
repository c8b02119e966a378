/*
handlers.go - HTTP API handlers for the parking engine

PURPOSE:
  Exposes the slot and reservation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Spaces:
    GET    /api/spaces                    List all spaces
    POST   /api/spaces                    Register a space
    GET    /api/spaces/{id}               Get space details
    POST   /api/spaces/{id}/close         Close a space to new slots
    DELETE /api/spaces/{id}               Delete a space and its slots
    GET    /api/spaces/{id}/slots         List the space's slots
    POST   /api/spaces/{id}/slots         Add a slot

  Slots:
    DELETE /api/slots/{number}            Remove a slot (renumbers above)
    GET    /api/slots/{number}/availability  Check a time window

  Reservations:
    POST   /api/reservations              Book a slot
    GET    /api/reservations/{id}         Get reservation details
    POST   /api/reservations/{id}/cancel  Cancel before start
    POST   /api/reservations/{id}/settle  Pay (atomic settlement)
    GET    /api/reservations/{id}/transactions  Settlement history

  Accounts:
    GET    /api/accounts                  List accounts
    POST   /api/accounts                  Register an account
    GET    /api/accounts/{id}             Get account and balance
    GET    /api/accounts/{id}/transactions  Settlement history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 402: Insufficient funds on settlement
  - 404: Resource not found
  - 409: Conflict (overlap, blocked removal, illegal transition)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - core/engine.go: The domain surface these handlers call
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/openlot/parkcore/core"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *core.Engine
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *core.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// SPACE HANDLERS
// =============================================================================

// ListSpaces returns all registered spaces.
func (h *Handler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.Engine.ListSpaces(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list spaces", err)
		return
	}

	dtos := make([]SpaceDTO, len(spaces))
	for i, s := range spaces {
		dtos[i] = toSpaceDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSpace registers a new parking space.
func (h *Handler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var req CreateSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
		return
	}

	space, err := h.Engine.CreateSpace(r.Context(), core.SpaceID(req.ID), req.Address, rate, core.AccountID(req.AdminID))
	if err != nil {
		writeDomainError(w, "Failed to create space", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSpaceDTO(*space))
}

// GetSpace returns a single space.
func (h *Handler) GetSpace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	space, err := h.Engine.GetSpace(r.Context(), core.SpaceID(id))
	if err != nil {
		writeDomainError(w, "Failed to get space", err)
		return
	}
	writeJSON(w, http.StatusOK, toSpaceDTO(*space))
}

// CloseSpace marks a space closed to new slots.
func (h *Handler) CloseSpace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Engine.CloseSpace(r.Context(), core.SpaceID(id)); err != nil {
		writeDomainError(w, "Failed to close space", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// DeleteSpace removes a space and its slots.
func (h *Handler) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Engine.DeleteSpace(r.Context(), core.SpaceID(id)); err != nil {
		writeDomainError(w, "Failed to delete space", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SLOT HANDLERS
// =============================================================================

// ListSlots returns the space's slots in index order.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	slots, err := h.Engine.GetSlotsForSpace(r.Context(), core.SpaceID(id))
	if err != nil {
		writeDomainError(w, "Failed to list slots", err)
		return
	}

	dtos := make([]SlotDTO, len(slots))
	for i, s := range slots {
		dtos[i] = SlotDTO{
			Number:    s.Number,
			SpaceID:   string(s.SpaceID),
			Index:     s.Index,
			Available: s.Available,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddSlot appends a slot to the space.
func (h *Handler) AddSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	number, err := h.Engine.AddSlot(r.Context(), core.SpaceID(id))
	if err != nil {
		writeDomainError(w, "Failed to add slot", err)
		return
	}
	writeJSON(w, http.StatusCreated, AddSlotResponse{Number: number})
}

// RemoveSlot deletes a slot, renumbering the ones above it when necessary.
func (h *Handler) RemoveSlot(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	renumbered, err := h.Engine.RemoveSlot(r.Context(), number)
	if err != nil {
		writeDomainError(w, "Failed to remove slot", err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveSlotResponse{Removed: number, Renumbered: renumbered})
}

// CheckAvailability reports whether a slot is free for a window.
// GET /api/slots/{number}/availability?start=...&end=...
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}

	available, err := h.Engine.CheckAvailability(r.Context(), number, start, end)
	if err != nil {
		writeDomainError(w, "Failed to check availability", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		SlotNumber: number,
		Start:      start.UTC().Format(time.RFC3339),
		End:        end.UTC().Format(time.RFC3339),
		Available:  available,
	})
}

// ListAvailableSlots returns the slot numbers in a space free for a window.
// GET /api/spaces/{id}/availability?start=...&end=...
func (h *Handler) ListAvailableSlots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}

	free, err := h.Engine.AvailableSlots(r.Context(), core.SpaceID(id), start, end)
	if err != nil {
		writeDomainError(w, "Failed to list available slots", err)
		return
	}
	writeJSON(w, http.StatusOK, SpaceAvailabilityDTO{
		SpaceID:   id,
		Start:     start.UTC().Format(time.RFC3339),
		End:       end.UTC().Format(time.RFC3339),
		Available: free,
	})
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation books a slot for a half-open [start, end) window.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}

	res, err := h.Engine.CreateReservation(r.Context(), req.SlotNumber,
		core.VehicleID(req.VehicleID), core.AccountID(req.RenterID), start, end)
	if err != nil {
		writeDomainError(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(*res))
}

// GetReservation returns a reservation by id.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.Engine.GetReservation(r.Context(), core.ReservationID(id))
	if err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res))
}

// CancelReservation cancels a PENDING or PAID reservation before its start.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Engine.CancelReservation(r.Context(), core.ReservationID(id)); err != nil {
		writeDomainError(w, "Failed to cancel reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// SettleReservation executes the atomic settlement for a PENDING reservation.
func (h *Handler) SettleReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.Engine.Settle(r.Context(), core.ReservationID(id))
	if err != nil {
		writeDomainError(w, "Failed to settle reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// GetReservationTransactions returns the settlement history of a reservation.
func (h *Handler) GetReservationTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	txs, err := h.Engine.TransactionsForReservation(r.Context(), core.ReservationID(id))
	if err != nil {
		writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Engine.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount registers a balance-bearing party.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		var err error
		balance, err = decimal.NewFromString(req.Balance)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid balance", err)
			return
		}
	}

	acct, err := h.Engine.CreateAccount(r.Context(), core.AccountID(req.ID), req.Name, balance)
	if err != nil {
		writeDomainError(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

// GetAccount returns an account and its current balance.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	acct, err := h.Engine.GetAccount(r.Context(), core.AccountID(id))
	if err != nil {
		writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// GetAccountTransactions returns the settlements an account took part in.
func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	txs, err := h.Engine.TransactionsForAccount(r.Context(), core.AccountID(id))
	if err != nil {
		writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toSpaceDTO(s core.ParkingSpace) SpaceDTO {
	return SpaceDTO{
		ID:         string(s.ID),
		Address:    s.Address,
		HourlyRate: s.HourlyRate.String(),
		AdminID:    string(s.AdminID),
		Closed:     s.Closed,
		SlotCount:  s.SlotCount,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

func toReservationDTO(r core.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:         string(r.ID),
		SlotNumber: r.SlotNumber,
		SpaceID:    string(r.SpaceID),
		VehicleID:  string(r.VehicleID),
		RenterID:   string(r.RenterID),
		Start:      r.Start.UTC().Format(time.RFC3339),
		End:        r.End.UTC().Format(time.RFC3339),
		Fee:        r.Fee.String(),
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

func toAccountDTO(a core.Account) AccountDTO {
	return AccountDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Balance:   a.Balance.String(),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(t core.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            string(t.ID),
		ReservationID: string(t.ReservationID),
		RenterID:      string(t.RenterID),
		OwnerID:       string(t.OwnerID),
		Amount:        t.Amount.String(),
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []core.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the core error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict),
		errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrCapacity):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
