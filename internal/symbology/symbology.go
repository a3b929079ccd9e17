// Package symbology classifies candidate strings by barcode format and verifies check digits.
package symbology

import (
	"regexp"
	"strings"
	"unicode/utf8"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// Format is a barcode symbology.
type Format string

// Known formats, in detection priority order.
const (
	EAN13   Format = "EAN13"
	UPCA    Format = "UPCA"
	EAN8    Format = "EAN8"
	Code128 Format = "Code128"
	Code39  Format = "Code39"
	QR      Format = "QR"
	Unknown Format = "Unknown"
)

// MaxQRLength is the byte-mode capacity of a version 40 QR symbol.
const MaxQRLength = 2953

// ValidationResult is the outcome of classifying a single candidate string.
type ValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Format  Format `json:"format"`
	Error   string `json:"error,omitempty"`

	// Err is the sentinel behind Error: ErrInvalidFormat or ErrChecksumMismatch.
	Err error `json:"-"`
}

type rule struct {
	format Format
	match  func(string) bool
	check  func(string) bool
}

//nolint:gochecknoglobals // compiled once
var (
	ean13Pattern   = regexp.MustCompile(`^[0-9]{13}$`)
	upcaPattern    = regexp.MustCompile(`^[0-9]{12}$`)
	ean8Pattern    = regexp.MustCompile(`^[0-9]{8}$`)
	code128Pattern = regexp.MustCompile(`^[A-Za-z0-9\-\.\+\*\/\$\%\[\]]{6,50}$`)
	code39Pattern  = regexp.MustCompile(`^[A-Z0-9\-\.\$\/\+\%\*\s]{1,43}$`)

	// Code128, Code39 and QR carry no enforced check: a structural match is accepted as valid.
	rules = []rule{
		{format: EAN13, match: ean13Pattern.MatchString, check: ValidMod10},
		{format: UPCA, match: upcaPattern.MatchString, check: ValidMod10},
		{format: EAN8, match: ean8Pattern.MatchString, check: ValidMod10},
		{format: Code128, match: code128Pattern.MatchString, check: accept},
		{format: Code39, match: code39Pattern.MatchString, check: accept},
		{format: QR, match: isQRPayload, check: accept},
	}
)

// Detect returns the first format whose structure matches text, or Unknown.
func Detect(text string) Format {
	if r, ok := lookup(strings.TrimSpace(text)); ok {
		return r.format
	}

	return Unknown
}

// Validate classifies text and verifies its check digit where the format defines one.
func Validate(text string) ValidationResult {
	text = strings.TrimSpace(text)

	r, ok := lookup(text)
	if !ok {
		return ValidationResult{
			Format: Unknown,
			Error:  "Barcode format not recognized",
			Err:    customerrors.ErrInvalidFormat,
		}
	}

	if !r.check(text) {
		return ValidationResult{
			Format: r.format,
			Error:  "Invalid " + string(r.format) + " checksum",
			Err:    customerrors.ErrChecksumMismatch,
		}
	}

	return ValidationResult{IsValid: true, Format: r.format}
}

func lookup(text string) (rule, bool) {
	for _, r := range rules {
		if r.match(text) {
			return r, true
		}
	}

	return rule{}, false
}

func isQRPayload(text string) bool {
	if text == "" || strings.ContainsAny(text, "\r\n") {
		return false
	}

	return utf8.RuneCountInString(text) <= MaxQRLength
}

func accept(string) bool { return true }
