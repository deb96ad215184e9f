package tools

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultSchedulingBaseURL is the booking host used when none is configured.
const DefaultSchedulingBaseURL = "https://calendly.com"

// SchedulingLink derives the booking URL for a property visit. It performs
// no I/O and does not check that the property exists.
func SchedulingLink(baseURL, tenantName string, propertyID int64) string {
	if baseURL == "" {
		baseURL = DefaultSchedulingBaseURL
	}
	slug := strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, tenantName))
	return fmt.Sprintf("%s/%s/visit-property-%d", strings.TrimRight(baseURL, "/"), slug, propertyID)
}
