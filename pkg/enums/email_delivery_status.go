package enums

import "fmt"

// EmailDeliveryStatus is the state machine of the outbound email ledger.
// Sent and skipped are terminal; failed is terminal once attempts are
// exhausted.
type EmailDeliveryStatus string

const (
	EmailDeliveryStatusPending    EmailDeliveryStatus = "pending"
	EmailDeliveryStatusProcessing EmailDeliveryStatus = "processing"
	EmailDeliveryStatusSent       EmailDeliveryStatus = "sent"
	EmailDeliveryStatusFailed     EmailDeliveryStatus = "failed"
	EmailDeliveryStatusSkipped    EmailDeliveryStatus = "skipped"
)

var validEmailDeliveryStatuses = []EmailDeliveryStatus{
	EmailDeliveryStatusPending,
	EmailDeliveryStatusProcessing,
	EmailDeliveryStatusSent,
	EmailDeliveryStatusFailed,
	EmailDeliveryStatusSkipped,
}

// String implements fmt.Stringer.
func (e EmailDeliveryStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EmailDeliveryStatus.
func (e EmailDeliveryStatus) IsValid() bool {
	for _, candidate := range validEmailDeliveryStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEmailDeliveryStatus converts raw input into an EmailDeliveryStatus.
func ParseEmailDeliveryStatus(value string) (EmailDeliveryStatus, error) {
	for _, candidate := range validEmailDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email delivery status %q", value)
}
