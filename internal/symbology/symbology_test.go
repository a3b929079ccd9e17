package symbology_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/symbology"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		valid  bool
		format symbology.Format
		err    error
	}{
		{name: "ean13", input: "4006381333931", valid: true, format: symbology.EAN13},
		{name: "ean13 bad check", input: "4006381333932", format: symbology.EAN13, err: customerrors.ErrChecksumMismatch},
		{name: "upca", input: "036000291452", valid: true, format: symbology.UPCA},
		{name: "upca bad check", input: "036000291453", format: symbology.UPCA, err: customerrors.ErrChecksumMismatch},
		{name: "ean8", input: "96385074", valid: true, format: symbology.EAN8},
		{name: "ean8 bad check", input: "96385075", format: symbology.EAN8, err: customerrors.ErrChecksumMismatch},
		{name: "code128", input: "ABC-123/x", valid: true, format: symbology.Code128},
		{name: "code39 short", input: "AB 1", valid: true, format: symbology.Code39},
		{name: "qr url", input: "https://faredeal.ug/product/42", valid: true, format: symbology.QR},
		{name: "surrounding space trimmed", input: "  96385074\n", valid: true, format: symbology.EAN8},
		{name: "empty", input: "", format: symbology.Unknown, err: customerrors.ErrInvalidFormat},
		{name: "multiline", input: "abc\ndef", format: symbology.Unknown, err: customerrors.ErrInvalidFormat},
		{name: "too long for qr", input: strings.Repeat("a", symbology.MaxQRLength+1), format: symbology.Unknown, err: customerrors.ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := symbology.Validate(tt.input)
			assert.Equal(t, tt.valid, res.IsValid)
			assert.Equal(t, tt.format, res.Format)

			if tt.err != nil {
				require.ErrorIs(t, res.Err, tt.err)
				assert.NotEmpty(t, res.Error)
			} else {
				require.NoError(t, res.Err)
				assert.Empty(t, res.Error)
			}
		})
	}
}

func TestValidate_ErrorMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Invalid EAN13 checksum", symbology.Validate("1234567890123").Error)
	assert.Equal(t, "Barcode format not recognized", symbology.Validate("a\nb").Error)
}

func TestValidate_ValidAlwaysHasFormat(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		for _, code := range []string{
			symbology.GenerateEAN13(r),
			symbology.GenerateUPCA(r),
			symbology.GenerateEAN8(r),
			symbology.GenerateCode128(r),
		} {
			res := symbology.Validate(code)
			if res.IsValid {
				assert.NotEqual(t, symbology.Unknown, res.Format, code)
			}
		}
	}
}

func TestDetect_PriorityOrder(t *testing.T) {
	t.Parallel()

	// 13 digits also match Code128 and QR structurally; EAN-13 wins.
	assert.Equal(t, symbology.EAN13, symbology.Detect("1234567890128"))
	assert.Equal(t, symbology.UPCA, symbology.Detect("123456789012"))
	assert.Equal(t, symbology.EAN8, symbology.Detect("12345678"))
	assert.Equal(t, symbology.Code128, symbology.Detect("abcdef"))
	assert.Equal(t, symbology.Code39, symbology.Detect("ABC"))
	assert.Equal(t, symbology.QR, symbology.Detect("hello, world"))
	assert.Equal(t, symbology.Unknown, symbology.Detect(""))
}

func TestCheckDigit_Properties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 11))

	cases := []struct {
		digits int
		format symbology.Format
	}{
		{digits: 12, format: symbology.EAN13},
		{digits: 11, format: symbology.UPCA},
		{digits: 7, format: symbology.EAN8},
	}

	for _, c := range cases {
		for range 1000 {
			payload := make([]byte, c.digits)
			for i := range payload {
				payload[i] = byte('0' + r.IntN(10))
			}

			code, err := symbology.WithCheckDigit(string(payload))
			require.NoError(t, err)

			res := symbology.Validate(code)
			assert.True(t, res.IsValid, code)
			assert.Equal(t, c.format, res.Format, code)
		}
	}
}

func TestGenerateEAN13_RoundTrip(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 5))
	for range 1000 {
		code := symbology.GenerateEAN13(r)
		res := symbology.Validate(code)
		require.True(t, res.IsValid, code)
		require.Equal(t, symbology.EAN13, res.Format, code)
	}

	retail := symbology.GenerateRetailEAN13(r, symbology.RetailPrefix)
	assert.True(t, strings.HasPrefix(retail, "629"))
	assert.Equal(t, symbology.ValidationResult{IsValid: true, Format: symbology.EAN13}, symbology.Validate(retail))
}

func TestEAN13_SingleDigitMutationFails(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(13, 17))

	var mutated, failed int

	for range 200 {
		code := []byte(symbology.GenerateEAN13(r))

		for pos := range code {
			orig := code[pos]

			for d := byte('0'); d <= '9'; d++ {
				if d == orig {
					continue
				}

				code[pos] = d
				mutated++

				if !symbology.Validate(string(code)).IsValid {
					failed++
				}
			}

			code[pos] = orig
		}
	}

	assert.GreaterOrEqual(t, float64(failed)/float64(mutated), 0.9)
}

func TestCheckDigit_RejectsNonDigits(t *testing.T) {
	t.Parallel()

	_, err := symbology.CheckDigit("12a4")
	require.Error(t, err)
	assert.False(t, symbology.ValidMod10("1"))
	assert.False(t, symbology.ValidMod10("123x"))
}

func TestGenerateCode128_Shape(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(21, 22))
	for range 200 {
		code := symbology.GenerateCode128(r)
		assert.GreaterOrEqual(t, len(code), 6)
		assert.LessOrEqual(t, len(code), 14)
		assert.True(t, symbology.Validate(code).IsValid, code)
	}
}
