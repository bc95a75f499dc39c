package monitor

import (
	"sync"

	"github.com/t77yq/overwatch/internal/model"
)

// DefaultHistoryCapacity is the number of fired alerts kept in memory
const DefaultHistoryCapacity = 1000

// AlertHistory is an append-only log of fired alerts. Only the most recent
// capacity records are retained; Recent is exact for any limit up to that.
type AlertHistory struct {
	mu       sync.RWMutex
	capacity int
	records  []model.AlertRecord
}

// NewAlertHistory creates a history retaining up to capacity records
func NewAlertHistory(capacity int) *AlertHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &AlertHistory{
		capacity: capacity,
		records:  make([]model.AlertRecord, 0, 64),
	}
}

// Append records a fired alert
func (h *AlertHistory) Append(record model.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) >= h.capacity {
		// Drop the oldest record, reusing the backing array
		copy(h.records, h.records[1:])
		h.records = h.records[:len(h.records)-1]
	}
	h.records = append(h.records, record)
}

// Recent returns the last limit records, oldest first
func (h *AlertHistory) Recent(limit int) []model.AlertRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 {
		return []model.AlertRecord{}
	}
	if limit > len(h.records) {
		limit = len(h.records)
	}

	out := make([]model.AlertRecord, limit)
	copy(out, h.records[len(h.records)-limit:])
	return out
}

// Len returns the number of retained records
func (h *AlertHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Clear drops every record
func (h *AlertHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.records[:0]
}
