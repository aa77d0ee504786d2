package donations

import (
	"strings"
	"unicode/utf8"
)

const anonymousDonor = "Anonymous"

// PublicDonorName applies the donor privacy rule. A registered donor is shown
// by display name; a guest is shown as first name and last initial.
func PublicDonorName(row publicDonationRow) string {
	if row.UserID != nil {
		if name := strings.TrimSpace(deref(row.UserDisplayName)); name != "" {
			return name
		}
		if name := shortName(deref(row.UserFirstName), deref(row.UserLastName)); name != "" {
			return name
		}
	}
	fields := strings.Fields(deref(row.DonorName))
	switch len(fields) {
	case 0:
		return anonymousDonor
	case 1:
		return fields[0]
	default:
		return shortName(fields[0], fields[len(fields)-1])
	}
}

func shortName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" {
		return ""
	}
	if last == "" {
		return first
	}
	initial, _ := utf8.DecodeRuneInString(last)
	return first + " " + strings.ToUpper(string(initial)) + "."
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
