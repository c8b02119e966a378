/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Space:
    SpaceDTO, CreateSpaceRequest

  Slot:
    SlotDTO, RemoveSlotResponse

  Reservation:
    ReservationDTO, CreateReservationRequest, AvailabilityDTO

  Account:
    AccountDTO, CreateAccountRequest

  Transaction:
    TransactionDTO

VALIDATION:
  Validation is done in handlers and the core, not in DTOs. DTOs are pure
  data carriers.

MONEY:
  Decimal amounts cross the wire as strings ("20.5"), never as JSON numbers,
  so clients are not exposed to float rounding.

SEE ALSO:
  - handlers.go: Uses these types
  - core/types.go: The domain types these mirror
*/
package api

// =============================================================================
// SPACES
// =============================================================================

// SpaceDTO represents a parking space in API responses.
type SpaceDTO struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	HourlyRate string `json:"hourly_rate"`
	AdminID    string `json:"admin_id"`
	Closed     bool   `json:"closed"`
	SlotCount  int    `json:"slot_count"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// CreateSpaceRequest is the request to register a parking space.
type CreateSpaceRequest struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	HourlyRate string `json:"hourly_rate"`
	AdminID    string `json:"admin_id"`
}

// =============================================================================
// SLOTS
// =============================================================================

// SlotDTO represents one numbered slot in API responses.
type SlotDTO struct {
	Number    string `json:"number"`
	SpaceID   string `json:"space_id"`
	Index     int    `json:"index"`
	Available bool   `json:"available"`
}

// AddSlotResponse reports the number assigned to a newly added slot.
type AddSlotResponse struct {
	Number string `json:"number"`
}

// RemoveSlotResponse reports whether the removal renumbered other slots.
type RemoveSlotResponse struct {
	Removed    string `json:"removed"`
	Renumbered bool   `json:"renumbered"`
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID         string `json:"id"`
	SlotNumber string `json:"slot_number"`
	SpaceID    string `json:"space_id"`
	VehicleID  string `json:"vehicle_id"`
	RenterID   string `json:"renter_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Fee        string `json:"fee"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// CreateReservationRequest books a slot for a time window.
type CreateReservationRequest struct {
	SlotNumber string `json:"slot_number"`
	VehicleID  string `json:"vehicle_id"`
	RenterID   string `json:"renter_id"`
	Start      string `json:"start"` // RFC3339
	End        string `json:"end"`   // RFC3339, exclusive
}

// SpaceAvailabilityDTO lists the slot numbers free for a window.
type SpaceAvailabilityDTO struct {
	SpaceID   string   `json:"space_id"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Available []string `json:"available"`
}

// AvailabilityDTO is the response to an availability check.
type AvailabilityDTO struct {
	SlotNumber string `json:"slot_number"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Available  bool   `json:"available"`
}

// =============================================================================
// ACCOUNTS AND TRANSACTIONS
// =============================================================================

// AccountDTO represents a balance-bearing party in API responses.
type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateAccountRequest registers an account with an opening balance.
type CreateAccountRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

// TransactionDTO represents one settlement record.
type TransactionDTO struct {
	ID            string `json:"id"`
	ReservationID string `json:"reservation_id"`
	RenterID      string `json:"renter_id"`
	OwnerID       string `json:"owner_id"`
	Amount        string `json:"amount"`
	CreatedAt     string `json:"created_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
