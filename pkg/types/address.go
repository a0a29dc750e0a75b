package types

import "strings"

// Address is the postal snapshot copied onto orders at creation time. Orders
// never reference a live address row, so historical orders stay immutable.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Validate reports the first missing required field, empty string when valid.
func (a Address) Validate() string {
	switch {
	case strings.TrimSpace(a.Line1) == "":
		return "line1"
	case strings.TrimSpace(a.City) == "":
		return "city"
	case strings.TrimSpace(a.PostalCode) == "":
		return "postal_code"
	case strings.TrimSpace(a.Country) == "":
		return "country"
	}
	return ""
}
