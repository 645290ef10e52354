package domain

import "time"

// Batch status constants
const (
	BatchStatusPending   = "PENDING"
	BatchStatusRunning   = "RUNNING"
	BatchStatusCompleted = "COMPLETED"
	BatchStatusFailed    = "FAILED"
)

// Batch is a persisted set of jobs processed by the worker service
type Batch struct {
	BatchID       string
	Status        string
	Jobs          []Job
	MaxConcurrent int
	WorkerID      string
	CreatedAt     time.Time
}

// BatchMessage is the RabbitMQ message announcing a new batch
type BatchMessage struct {
	BatchID     string `json:"batch_id"`
	DeliveryTag uint64 `json:"-"`
}
