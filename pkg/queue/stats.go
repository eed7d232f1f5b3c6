package queue

import "time"

// Statistics is a point-in-time summary of the queue for display or logging.
type Statistics struct {
	Pending       int          `json:"pending"`
	Failed        int          `json:"failed"`
	ByType        map[Type]int `json:"by_type"`
	OldestPending *time.Time   `json:"oldest_pending,omitempty"`
	OldestFailed  *Operation   `json:"oldest_failed,omitempty"`
	EstimatedSize int64        `json:"estimated_size"`
}

// Total is the number of operations still held by the queue
func (s Statistics) Total() int {
	return s.Pending + s.Failed
}
