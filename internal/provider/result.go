package provider

// DeliveryStatus is the transport-reported state of a delivery attempt.
type DeliveryStatus string

const (
	StatusUnknown   DeliveryStatus = "unknown"
	StatusSent      DeliveryStatus = "sent"
	StatusQueued    DeliveryStatus = "queued"
	StatusInitiated DeliveryStatus = "initiated"
	StatusFailed    DeliveryStatus = "failed"
)

// Result is the outcome of a single provider attempt. Providers never return
// errors across the package boundary; every failure path is folded into a
// Result with Success=false so callers always branch on .Success.
//
// Invariant: Success implies ErrorMessage is empty, and !Success implies
// ErrorMessage is non-empty. Construct through Succeeded/Failed to keep it.
type Result struct {
	Success      bool           `json:"success"`
	MessageID    string         `json:"message_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Provider     string         `json:"provider"`
	Cost         float64        `json:"cost"` // USD
	Status       DeliveryStatus `json:"status"`
	Raw          string         `json:"-"` // opaque diagnostic payload for the audit log
}

// Succeeded builds a successful Result.
func Succeeded(providerName, messageID string, cost float64, status DeliveryStatus, raw string) Result {
	if status == "" {
		status = StatusSent
	}
	return Result{
		Success:   true,
		MessageID: messageID,
		Provider:  providerName,
		Cost:      cost,
		Status:    status,
		Raw:       raw,
	}
}

// Failed builds a failed Result. An empty message is replaced so the
// invariant on ErrorMessage holds even for lazy call sites.
func Failed(providerName, errorMessage, raw string) Result {
	if errorMessage == "" {
		errorMessage = "delivery failed"
	}
	return Result{
		Success:      false,
		ErrorMessage: errorMessage,
		Provider:     providerName,
		Status:       StatusFailed,
		Raw:          raw,
	}
}
