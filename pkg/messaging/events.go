package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// User events, consumed to keep the local user cache fresh
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	// Ledger events
	EventTransactionAppended = "ledger.transaction.appended"
	EventBalanceRebuilt      = "ledger.balance.rebuilt"

	// Storage billing events
	EventSnapshotComputed  = "storage.snapshot.computed"
	EventInvoiceReconciled = "invoice.reconciled"
)

// Exchange names
const (
	ExchangeUserEvents = "user.events"
	ExchangeWMSEvents  = "wms.events"
	ExchangeDeadLetter = "wms.dlx"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// User Events

// UserCreatedEvent is published by the identity service when a user is created
type UserCreatedEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleName  string `json:"role_name"`
}

// UserUpdatedEvent carries the changed fields as {"field": {"from": x, "to": y}}
type UserUpdatedEvent struct {
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// UserDeletedEvent is published when a user is deleted
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// Ledger Events

// TransactionAppendedEvent is published after a ledger entry and its
// balance update commit.
type TransactionAppendedEvent struct {
	TransactionID   string    `json:"transaction_id"`
	WarehouseID     string    `json:"warehouse_id"`
	SKUID           string    `json:"sku_id"`
	Batch           string    `json:"batch_lot"`
	TransactionType string    `json:"transaction_type"`
	NetCartons      int64     `json:"net_cartons"`
	BalanceCartons  int64     `json:"balance_cartons"`
	BalancePallets  int64     `json:"balance_pallets"`
	BalanceVersion  int64     `json:"balance_version"`
	TransactionDate time.Time `json:"transaction_date"`
	CreatedBy       string    `json:"created_by"`
}

// BalanceRebuiltEvent is published when a balance was rebuilt from history
type BalanceRebuiltEvent struct {
	WarehouseID string `json:"warehouse_id"`
	SKUID       string `json:"sku_id"`
	Batch       string `json:"batch_lot"`
	Cartons     int64  `json:"cartons"`
	Version     int64  `json:"version"`
	Changed     bool   `json:"changed"`
}

// Storage Events

// SnapshotComputedEvent is published when weekly storage costs are persisted
type SnapshotComputedEvent struct {
	WarehouseID  string    `json:"warehouse_id"`
	WeekStart    time.Time `json:"week_start"`
	Items        int       `json:"items"`
	TotalPallets int64     `json:"total_pallets"`
	TotalCost    string    `json:"total_cost"`
}

// InvoiceReconciledEvent is published after an invoice was reconciled
type InvoiceReconciledEvent struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	WarehouseID   string `json:"warehouse_id"`
	Status        string `json:"status"`
	Matched       int    `json:"matched"`
	Overbilled    int    `json:"overbilled"`
	Underbilled   int    `json:"underbilled"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
