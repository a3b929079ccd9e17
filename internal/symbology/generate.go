package symbology

import (
	"math/rand/v2"
	"strings"
)

const alnumUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RetailPrefix is the GS1 prefix used for generated retail EAN-13 codes.
const RetailPrefix = "629"

// GenerateEAN13 returns a random EAN-13 with a correct check digit.
func GenerateEAN13(r *rand.Rand) string {
	return mustCheck(randomDigits(r, 12))
}

// GenerateRetailEAN13 returns prefix + 4-digit manufacturer + 5-digit product + check digit.
func GenerateRetailEAN13(r *rand.Rand, prefix string) string {
	payload := prefix + randomDigits(r, 4) + randomDigits(r, 5)
	if len(payload) > 12 {
		payload = payload[:12]
	}

	return mustCheck(payload + randomDigits(r, 12-len(payload)))
}

// GenerateUPCA returns a random UPC-A with a correct check digit.
func GenerateUPCA(r *rand.Rand) string {
	return mustCheck(randomDigits(r, 11))
}

// GenerateEAN8 returns a random EAN-8 with a correct check digit.
func GenerateEAN8(r *rand.Rand) string {
	return mustCheck(randomDigits(r, 7))
}

// GenerateCode128 returns 6 to 14 characters from [A-Z0-9].
func GenerateCode128(r *rand.Rand) string {
	n := 6 + r.IntN(9)

	var b strings.Builder
	b.Grow(n)

	for range n {
		b.WriteByte(alnumUpper[r.IntN(len(alnumUpper))])
	}

	// An all-digit result would classify as a retail symbology instead.
	out := b.String()
	if strings.Trim(out, "0123456789") == "" {
		out = string(alnumUpper[r.IntN(26)]) + out[1:]
	}

	return out
}

func randomDigits(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + r.IntN(10))
	}

	return string(b)
}

func mustCheck(payload string) string {
	code, err := WithCheckDigit(payload)
	if err != nil {
		panic(err) // payload is generated from digits only
	}

	return code
}
