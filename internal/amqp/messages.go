package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordKind names the ledger table a message refers to.
type RecordKind string

const (
	KindExpense     RecordKind = "expense"
	KindExtraIncome RecordKind = "extra_income"
	KindFixedIncome RecordKind = "fixed_income"
)

type Action string

const (
	ActionSync   Action = "sync"
	ActionDelete Action = "delete"
)

// RecordRef points at one stored record. Fixed incomes are keyed by month,
// so their ID is the YYYY-MM month.
type RecordRef struct {
	Kind  RecordKind `json:"kind"`
	Owner string     `json:"owner"`
	ID    string     `json:"id"`
	Month string     `json:"month"`
}

// RecordMessage is a lightweight notification; the worker loads the record
// itself when it handles a sync.
type RecordMessage struct {
	RecordRef
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordMessage(action Action, ref RecordRef) *RecordMessage {
	return &RecordMessage{
		RecordRef: ref,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *RecordMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordMessageFromJSON decodes and checks a message body.
func RecordMessageFromJSON(data []byte) (*RecordMessage, error) {
	var msg RecordMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Action {
	case ActionSync, ActionDelete:
	default:
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	switch msg.Kind {
	case KindExpense, KindExtraIncome, KindFixedIncome:
	default:
		return nil, fmt.Errorf("unknown record kind %q", msg.Kind)
	}
	if msg.ID == "" || msg.Owner == "" {
		return nil, fmt.Errorf("message without id or owner")
	}
	return &msg, nil
}
