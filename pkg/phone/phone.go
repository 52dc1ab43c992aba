// Package phone normalizes contact numbers for messaging handoffs.
package phone

import (
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeE164 parses a phone number and returns it in E.164 format
// (+5511998765432). defaultRegion supplies the country when the number
// carries no international prefix.
func NormalizeE164(raw, defaultRegion string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	if defaultRegion == "" {
		defaultRegion = "BR"
	}

	parsed, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number")
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// IsValid reports whether the number parses as a valid phone number for
// the region.
func IsValid(raw, defaultRegion string) bool {
	_, err := NormalizeE164(raw, defaultRegion)
	return err == nil
}
