package services

import (
	"regexp"
	"strings"
	"unicode"
)

// Address is a structured destination. Orders keep the address as free text;
// ParseAddress recovers the structure for rating.
type Address struct {
	Name       string `json:"name,omitempty"`
	Street1    string `json:"street,omitempty"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

var (
	cityStateZip = regexp.MustCompile(`^(.*?)[,\s]+([A-Za-z]{2})\.?\s+(\d{5}(?:-\d{4})?)$`)
	stateZip     = regexp.MustCompile(`^([A-Za-z]{2})\.?\s+(\d{5}(?:-\d{4})?)$`)
	anyStateZip  = regexp.MustCompile(`\b([A-Z]{2})\s+(\d{5}(?:-\d{4})?)\b`)
)

var countryAliases = map[string]string{
	"us":                       "US",
	"usa":                      "US",
	"u.s.":                     "US",
	"u.s.a.":                   "US",
	"united states":            "US",
	"united states of america": "US",
}

// ParseAddress splits a free-text US address into its parts. It never fails;
// fields it cannot find are left empty and the country defaults to US.
func ParseAddress(raw string) Address {
	addr := Address{Country: "US"}

	segments := splitSegments(raw)
	if len(segments) == 0 {
		return addr
	}

	if country, ok := countryAliases[strings.ToLower(segments[len(segments)-1])]; ok {
		addr.Country = country
		segments = segments[:len(segments)-1]
	}

	cityIdx := -1
	for i := len(segments) - 1; i >= 0 && cityIdx < 0; i-- {
		if m := stateZip.FindStringSubmatch(segments[i]); m != nil && i > 0 {
			addr.City = segments[i-1]
			addr.State = strings.ToUpper(m[1])
			addr.PostalCode = m[2]
			cityIdx = i - 1
		} else if m := cityStateZip.FindStringSubmatch(segments[i]); m != nil {
			addr.City = strings.TrimRight(strings.TrimSpace(m[1]), ",")
			addr.State = strings.ToUpper(m[2])
			addr.PostalCode = m[3]
			cityIdx = i
		}
	}

	if cityIdx < 0 {
		if m := anyStateZip.FindStringSubmatch(raw); m != nil {
			addr.State = m[1]
			addr.PostalCode = m[2]
		}
		addr.Street1 = segments[0]
		return addr
	}

	lines := segments[:cityIdx]
	streetIdx := -1
	for i, line := range lines {
		if startsWithDigit(line) || strings.HasPrefix(strings.ToLower(line), "po box") {
			streetIdx = i
			break
		}
	}
	switch {
	case streetIdx >= 0:
		addr.Name = strings.Join(lines[:streetIdx], " ")
		addr.Street1 = lines[streetIdx]
		addr.Street2 = strings.Join(lines[streetIdx+1:], " ")
	case len(lines) == 1:
		addr.Street1 = lines[0]
	case len(lines) > 1:
		addr.Name = lines[0]
		addr.Street1 = lines[1]
		addr.Street2 = strings.Join(lines[2:], " ")
	}
	return addr
}

func splitSegments(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r", "")
	parts := strings.Split(raw, "\n")
	if len(parts) == 1 {
		parts = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func startsWithDigit(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}
