package address

import (
	"sort"
	"strings"
)

// stateNames maps USPS codes (states, DC, territories) to names.
var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"DC": "District of Columbia", "FL": "Florida", "GA": "Georgia", "HI": "Hawaii",
	"ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine",
	"MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska",
	"NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico",
	"NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island",
	"SC": "South Carolina", "SD": "South Dakota", "TN": "Tennessee", "TX": "Texas",
	"UT": "Utah", "VT": "Vermont", "VA": "Virginia", "WA": "Washington",
	"WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"PR": "Puerto Rico", "GU": "Guam", "VI": "Virgin Islands",
	"AS": "American Samoa", "MP": "Northern Mariana Islands",
}

// stateCodes is the lower-cased inverse of stateNames.
var stateCodes = func() map[string]string {
	out := make(map[string]string, len(stateNames))
	for code, name := range stateNames {
		out[strings.ToLower(name)] = code
	}
	return out
}()

// stateNamesByLength lists lower-cased names longest first so "west virginia"
// wins over "virginia".
var stateNamesByLength = func() []string {
	out := make([]string, 0, len(stateCodes))
	for name := range stateCodes {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

var streetSuffixes = setOf(
	"street", "st", "avenue", "ave", "av", "road", "rd", "lane", "ln",
	"drive", "dr", "boulevard", "blvd", "way", "court", "ct", "place", "pl",
	"circle", "cir", "parkway", "pkwy", "highway", "hwy", "terrace", "ter",
	"trail", "trl", "square", "sq", "loop", "pike", "alley", "aly", "plaza",
	"expressway", "expy", "freeway", "fwy", "turnpike", "tpke", "row",
)

var unitDesignators = setOf(
	"apt", "apartment", "suite", "ste", "unit", "bldg", "building", "floor",
	"fl", "rm", "room", "#",
)

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
