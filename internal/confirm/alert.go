package confirm

import "time"

// AlertTypePaymentTimeout is the alert type raised when a confirmation
// could not be obtained within the polling ceiling.
const AlertTypePaymentTimeout = "PAYMENT_TIMEOUT"

// Alert is the one-way payload handed to the alerting collaborator.
type Alert struct {
	ID          string    `json:"alert_id"`
	Type        string    `json:"alert_type"`
	Severity    string    `json:"severity"`
	Identifier  string    `json:"identifier"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"created_at"`
}
