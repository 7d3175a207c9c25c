package notify

import (
	"encoding/json"
	"time"
)

// AlertMessage is published once per dispatched budget alert. Money is
// carried as decimal strings.
type AlertMessage struct {
	TriggerID   string    `json:"trigger_id,omitempty"`
	OwnerID     int64     `json:"owner_id"`
	BudgetID    int64     `json:"budget_id"`
	BudgetName  string    `json:"budget_name"`
	CategoryID  int64     `json:"category_id"`
	Month       string    `json:"month"`
	Threshold   string    `json:"threshold"`
	Status      string    `json:"status"`
	Consumption string    `json:"consumption"`
	Limit       string    `json:"limit"`
	Percentage  float64   `json:"percentage"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertMessageFromJSON creates a message from JSON bytes
func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
