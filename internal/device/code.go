package device

import (
	"regexp"
	"strings"
)

// CodeLength is the number of characters in a device code.
const CodeLength = 6

var codeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// DeriveCode returns the code for a device id: its last CodeLength
// characters, upper-cased. Shorter ids yield the whole id upper-cased.
//
// The function is pure and total; whether the result is usable is decided
// separately by ValidateCode.
func DeriveCode(id string) string {
	if len(id) > CodeLength {
		id = id[len(id)-CodeLength:]
	}
	return asciiUpper(id)
}

// NormalizeCode trims surrounding whitespace and upper-cases a
// controller-supplied code.
func NormalizeCode(code string) string {
	return asciiUpper(strings.TrimSpace(code))
}

// asciiUpper upper-cases a-z only. Unicode case folding would map
// characters such as 'ſ' or 'ı' into the code alphabet.
func asciiUpper(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r - ('a' - 'A')
		}
		return r
	}, s)
}

// ValidateCode normalizes code and checks its shape: exactly CodeLength
// characters from [A-Z0-9]. It returns the normalized code.
func ValidateCode(code string) (string, error) {
	code = NormalizeCode(code)
	if !codeRegex.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}
