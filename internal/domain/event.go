package domain

import "time"

// LedgerChannel is the bus channel carrying LedgerEvent payloads.
const LedgerChannel = "ledger"

// Ledger event names.
const (
	EventEntryRecorded    = "entry_recorded"
	EventEntryDeleted     = "entry_deleted"
	EventTransferRecorded = "transfer_recorded"
	EventExchangeRecorded = "exchange_recorded"
	EventOutflowRejected  = "outflow_rejected"
)

// LedgerEvent is published whenever the ledger of a position changes.
type LedgerEvent struct {
	Event         string    `json:"event"`
	PositionID    string    `json:"position_id"`
	EntryID       string    `json:"entry_id"`
	LinkedEntryID string    `json:"linked_entry_id,omitempty"`
	Reason        Reason    `json:"reason"`
	Quantity      string    `json:"quantity"`
	Generation    int64     `json:"generation,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
