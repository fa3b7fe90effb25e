package provider

import "strings"

// callingCodes maps ISO country codes to international calling prefixes for
// the countries the service delivers to. Used to rewrite local-format
// numbers (leading "0") into E.164 form.
var callingCodes = map[string]string{
	"NG": "234",
	"GH": "233",
	"KE": "254",
	"UG": "256",
	"TZ": "255",
	"RW": "250",
	"MW": "265",
	"ZM": "260",
	"ZA": "27",
	"EG": "20",
	"MA": "212",
	"US": "1",
	"CA": "1",
	"GB": "44",
	"SA": "966",
	"AE": "971",
	"IN": "91",
	"PK": "92",
	"BD": "880",
	"ID": "62",
	"MY": "60",
	"TR": "90",
}

// FormatPhone normalizes a phone number into international form:
//
//	"0803 123 4567" + "NG" -> "+2348031234567"
//	"+2348031234567"       -> "+2348031234567" (unchanged)
//	"002348031234567"      -> "+2348031234567"
//
// Idempotent: formatting an already-formatted number is a no-op. Numbers in
// local form for an unknown country are returned cleaned but unprefixed.
func FormatPhone(raw, country string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, raw)

	if cleaned == "" {
		return ""
	}

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if strings.HasPrefix(cleaned, "00") {
		return "+" + cleaned[2:]
	}

	code, ok := callingCodes[strings.ToUpper(country)]
	if !ok {
		return cleaned
	}

	if strings.HasPrefix(cleaned, "0") {
		return "+" + code + cleaned[1:]
	}
	// Bare international form without "+" (e.g. "2348031234567").
	if strings.HasPrefix(cleaned, code) {
		return "+" + cleaned
	}
	return "+" + code + cleaned
}
