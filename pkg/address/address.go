// Package address parses free-form US postal addresses into components.
//
// The parser is heuristic: it peels a ZIP code and a state off the end of
// the string, then splits the remainder into street and locality using
// commas or, failing that, the last street-type word.
package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultCountry is stamped on every collected address.
const DefaultCountry = "US"

// ErrUnparseable is returned when no street or locality can be recovered.
var ErrUnparseable = errors.New("unparseable address")

// Address is a structured postal address.
type Address struct {
	StreetAddress   string `json:"street_address"`
	AddressLocality string `json:"address_locality"`
	AddressRegion   string `json:"address_region"`
	PostalCode      string `json:"postal_code"`
	AddressCountry  string `json:"address_country"`
}

// IsZero reports whether a holds no components.
func (a Address) IsZero() bool {
	return a == Address{}
}

var (
	zipPattern     = regexp.MustCompile(`(?:^|[\s,])(\d{5}(?:-\d{4})?)$`)
	spacePattern   = regexp.MustCompile(`\s+`)
	countrySuffix  = regexp.MustCompile(`(?i)[\s,]+(USA|U\.S\.A\.|United States(?: of America)?)$`)
	alnumPattern   = regexp.MustCompile(`[[:alnum:]]`)
	segmentDivider = regexp.MustCompile(`[|;]`)
)

// Parse splits s into address components. Blank input yields a zero Address
// and no error. The country is left empty; Collect stamps it.
func Parse(s string) (Address, error) {
	v := strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	if v == "" {
		return Address{}, nil
	}
	if !alnumPattern.MatchString(v) {
		return Address{}, fmt.Errorf("%w: %q", ErrUnparseable, s)
	}

	var a Address
	v = trimSeparators(countrySuffix.ReplaceAllString(v, ""))

	if m := zipPattern.FindStringSubmatchIndex(v); m != nil {
		a.PostalCode = v[m[2]:m[3]]
		v = trimSeparators(v[:m[2]])
	}

	if region, rest, ok := cutState(v); ok {
		a.AddressRegion = region
		v = trimSeparators(rest)
	}

	var parts []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) >= 2:
		a.StreetAddress = strings.Join(parts[:len(parts)-1], ", ")
		a.AddressLocality = parts[len(parts)-1]
	case len(parts) == 1:
		a.StreetAddress, a.AddressLocality = splitStreetLocality(parts[0])
	}

	if a.StreetAddress == "" && a.AddressLocality == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrUnparseable, s)
	}
	return a, nil
}

// Collect parses the provider address followed by each program address
// segment (separated by "|" or ";"). Segments that fail to parse are logged
// and omitted, as are results without a street. Every returned address has
// AddressCountry set to country, or DefaultCountry when country is empty.
func Collect(provider, program, country string, log *zap.Logger) []Address {
	if log == nil {
		log = zap.NewNop()
	}
	if country == "" {
		country = DefaultCountry
	}

	inputs := []string{provider}
	if strings.TrimSpace(program) != "" {
		inputs = append(inputs, segmentDivider.Split(program, -1)...)
	}

	var out []Address
	for _, in := range inputs {
		a, err := Parse(in)
		if err != nil {
			log.Warn("Skipping unparseable address", zap.String("address", in), zap.Error(err))
			continue
		}
		if strings.TrimSpace(a.StreetAddress) == "" {
			continue
		}
		a.AddressCountry = country
		out = append(out, a)
	}
	return out
}

func trimSeparators(s string) string {
	return strings.Trim(s, " ,")
}

// cutState removes a trailing state code or name from s.
func cutState(s string) (code, rest string, ok bool) {
	if s == "" {
		return "", s, false
	}

	idx := strings.LastIndexAny(s, " ,")
	last := s[idx+1:]
	if len(last) == 2 && last == strings.ToUpper(last) {
		if _, known := stateNames[last]; known {
			return last, s[:idx+1], true
		}
	}

	lower := strings.ToLower(s)
	for _, name := range stateNamesByLength {
		if !strings.HasSuffix(lower, name) {
			continue
		}
		cut := len(s) - len(name)
		if cut > 0 && !strings.ContainsRune(" ,", rune(s[cut-1])) {
			continue
		}
		return stateCodes[name], s[:cut], true
	}
	return "", s, false
}

// splitStreetLocality splits "1 Main Street Springfield" after the last
// street-type word (and any trailing unit designator).
func splitStreetLocality(s string) (street, locality string) {
	words := strings.Fields(s)
	cut := -1
	for i, w := range words {
		if i == 0 {
			continue
		}
		if _, ok := streetSuffixes[normalizeWord(w)]; ok {
			cut = i + 1
		}
	}
	if cut > 0 && cut < len(words) {
		if _, ok := unitDesignators[normalizeWord(words[cut])]; ok && cut+1 < len(words) {
			cut += 2
		}
	}

	switch {
	case cut > 0:
		return strings.Join(words[:cut], " "), strings.Join(words[cut:], " ")
	case startsWithDigit(s):
		return s, ""
	default:
		return "", s
	}
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimRight(w, ".,"))
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
