// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "BR"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// FromJID extracts the phone number from a messaging-gateway JID,
// e.g. "5511999999999@s.whatsapp.net" becomes "5511999999999".
// Returns the empty string when the JID does not carry a plausible number.
func FromJID(jid string) string {
	if jid == "" {
		return ""
	}

	raw := jid
	if at := strings.IndexByte(jid, '@'); at >= 0 {
		raw = jid[:at]
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if len(digits) < 10 || len(digits) > 15 {
		return ""
	}
	if strings.Trim(digits, "0") == "" {
		return ""
	}

	return digits
}
