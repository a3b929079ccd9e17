package symbology

import (
	"errors"
)

var errNonDigit = errors.New("payload must contain only digits")

// CheckDigit computes the GS1 mod-10 check digit for a numeric payload.
// Weights alternate 3,1,3,... starting from the digit nearest the check digit,
// which covers EAN-13, UPC-A and EAN-8 with one rule.
func CheckDigit(payload string) (int, error) {
	sum := 0

	for i := range len(payload) {
		c := payload[len(payload)-1-i]
		if c < '0' || c > '9' {
			return 0, errNonDigit
		}

		d := int(c - '0')
		if i%2 == 0 {
			d *= 3
		}

		sum += d
	}

	return (10 - sum%10) % 10, nil
}

// ValidMod10 reports whether the last digit of code is the check digit of the rest.
func ValidMod10(code string) bool {
	if len(code) < 2 {
		return false
	}

	want, err := CheckDigit(code[:len(code)-1])
	if err != nil {
		return false
	}

	last := code[len(code)-1]

	return last >= '0' && last <= '9' && int(last-'0') == want
}

// WithCheckDigit appends the check digit to payload.
func WithCheckDigit(payload string) (string, error) {
	d, err := CheckDigit(payload)
	if err != nil {
		return "", err
	}

	return payload + string(rune('0'+d)), nil
}
