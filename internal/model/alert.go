package model

import "time"

// AlertCandidate is a threshold breach before cooldown suppression is applied
type AlertCandidate struct {
	Kind    string  `json:"kind"`
	Source  string  `json:"source,omitempty"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}

// AlertRecord represents a fired alert
type AlertRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAlertRecord stamps a candidate with an ID and the time it fired
func NewAlertRecord(id string, c AlertCandidate, firedAt time.Time) AlertRecord {
	return AlertRecord{
		ID:        id,
		Kind:      c.Kind,
		Source:    c.Source,
		Message:   c.Message,
		Value:     c.Value,
		Timestamp: firedAt,
	}
}
