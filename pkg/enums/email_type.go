package enums

import "fmt"

// EmailType identifies the notification template behind a ledger row and is
// part of its dedupe key.
type EmailType string

const (
	EmailTypeOrderConfirmation EmailType = "order_confirmation"
	EmailTypeVendorNewOrder    EmailType = "vendor_new_order"
)

var validEmailTypes = []EmailType{
	EmailTypeOrderConfirmation,
	EmailTypeVendorNewOrder,
}

// String implements fmt.Stringer.
func (e EmailType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EmailType.
func (e EmailType) IsValid() bool {
	for _, candidate := range validEmailTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEmailType converts raw input into an EmailType.
func ParseEmailType(value string) (EmailType, error) {
	for _, candidate := range validEmailTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email type %q", value)
}
