package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	ClientID      string    `json:"client_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Actor         string    `json:"actor"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger emits append-only ledger audit events as AUDIT: {json} lines.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogMutation(eventType, clientID, transactionID string, amount int64, actor string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     eventType,
		ClientID:      clientID,
		TransactionID: transactionID,
		Amount:        amount,
		Actor:         actor,
		Status:        "SUCCESS",
	})
}

func (a *Logger) LogClientDelete(clientID, mode, actor string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "CLIENT_DELETE",
		ClientID:  clientID,
		Actor:     actor,
		Status:    "SUCCESS",
		Details:   map[string]string{"mode": mode},
	})
}

func (a *Logger) LogConsistencyViolation(clientID string, balance, totalCharged, totalPaid int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "CONSISTENCY_VIOLATION",
		ClientID:  clientID,
		Status:    "FAILED",
		Details: map[string]int64{
			"balance":       balance,
			"total_charged": totalCharged,
			"total_paid":    totalPaid,
		},
	})
}

func (a *Logger) LogError(clientID, transactionID string, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		ClientID:      clientID,
		TransactionID: transactionID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
