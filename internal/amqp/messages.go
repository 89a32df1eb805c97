package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names the change an ExpenseEvent reports.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// ExpenseEvent is a lightweight change notification. It carries only the
// identity of the record; consumers read the current state from the store.
type ExpenseEvent struct {
	Type      EventType `json:"type"`
	Owner     string    `json:"owner"`
	ExpenseID int64     `json:"expense_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event stamped with the current time.
func NewExpenseEvent(t EventType, owner string, id int64) ExpenseEvent {
	return ExpenseEvent{
		Type:      t,
		Owner:     owner,
		ExpenseID: id,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes and sanity-checks an event body.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, err
	}
	if !ev.Type.Valid() {
		return ExpenseEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Owner == "" || ev.ExpenseID <= 0 {
		return ExpenseEvent{}, fmt.Errorf("event missing owner or expense id")
	}
	return ev, nil
}
