package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is both the event type and its routing key on the topic exchange.
type Kind string

const (
	ExpenseCreated  Kind = "expense.created"
	ExpenseDeleted  Kind = "expense.deleted"
	CategoryCreated Kind = "category.created"
	ProfileSaved    Kind = "profile.saved"
)

func (k Kind) Valid() bool {
	switch k {
	case ExpenseCreated, ExpenseDeleted, CategoryCreated, ProfileSaved:
		return true
	}
	return false
}

// ChangeEvent announces a write to users/{UserID}/... . Consumers re-read the
// document by DocID instead of trusting a payload.
type ChangeEvent struct {
	UserID    string    `json:"userId"`
	Kind      Kind      `json:"kind"`
	DocID     string    `json:"docId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeEvent(uid string, kind Kind, docID string) *ChangeEvent {
	return &ChangeEvent{
		UserID:    uid,
		Kind:      kind,
		DocID:     docID,
		Timestamp: time.Now(),
	}
}

func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeEventFromJSON decodes and checks an event body.
func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("event %s without user id", msg.Kind)
	}
	return &msg, nil
}
