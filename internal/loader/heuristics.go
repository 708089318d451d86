package loader

import "strings"

// Classification heuristics for reference entities derived from the raw
// CSV. The source file carries no region, donor-type, or donor-country
// columns, so these are inferred from names.

var regionKeywords = []struct {
	region   string
	keywords []string
}{
	{"South Asia", []string{"afghanistan", "pakistan", "india", "bangladesh", "nepal"}},
	{"Sub-Saharan Africa", []string{"kenya", "ethiopia", "ghana", "nigeria", "tanzania"}},
	{"Middle East & North Africa", []string{"syria", "jordan", "lebanon", "iraq", "yemen"}},
	{"Europe & Central Asia", []string{"ukraine", "moldova", "albania"}},
	{"Latin America & Caribbean", []string{"brazil", "colombia", "peru", "bolivia"}},
}

// matchKeyword does a substring match, except for very short keywords
// ("un", "uk", "usa") which must match a whole word so that names like
// "Foundation" or "Ukraine" do not false-positive.
func matchKeyword(lower, kw string) bool {
	if len(kw) > 3 {
		return strings.Contains(lower, kw)
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if word == kw {
			return true
		}
	}
	return false
}

func regionForCountry(name string) string {
	lower := strings.ToLower(name)
	for _, entry := range regionKeywords {
		for _, kw := range entry.keywords {
			if matchKeyword(lower, kw) {
				return entry.region
			}
		}
	}
	return "Other"
}

var (
	multilateralKeywords = []string{"world bank", "imf", "un", "united nations", "who", "unicef"}
	privateKeywords      = []string{"ngo", "foundation", "charity", "private"}
)

func donorTypeFor(name string) string {
	lower := strings.ToLower(name)
	for _, kw := range multilateralKeywords {
		if matchKeyword(lower, kw) {
			return "multilateral"
		}
	}
	for _, kw := range privateKeywords {
		if matchKeyword(lower, kw) {
			return "private"
		}
	}
	return "bilateral"
}

var donorCountryKeywords = []struct {
	country  string
	keywords []string
}{
	{"Netherlands", []string{"netherlands"}},
	{"Germany", []string{"germany"}},
	{"United States", []string{"united states", "usaid", "usa"}},
	{"Canada", []string{"canada"}},
	{"United Kingdom", []string{"uk", "britain", "dfid"}},
	{"France", []string{"france"}},
	{"Japan", []string{"japan"}},
	{"Norway", []string{"norway"}},
	{"Sweden", []string{"sweden"}},
}

func donorCountryFor(name string) string {
	lower := strings.ToLower(name)
	for _, entry := range donorCountryKeywords {
		for _, kw := range entry.keywords {
			if matchKeyword(lower, kw) {
				return entry.country
			}
		}
	}
	return "International"
}
