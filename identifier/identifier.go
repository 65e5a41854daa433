/*
identifier.go - Product codes, counterparty codes and management numbers

PURPOSE:
  Derives the human-readable identifiers that appear on labels, ledgers and
  compliance records. Every function here is deterministic.

FORMATS:
  Product code:      ^[NSMO][A-Z0-9]{1,2}$
                     N01 (Switch), S03 (PS4), NS (Nintendo software)
  Management number: <counterparty code>_<product code>_<YYYYMMDD>_<seq>
                     YAMADA_N01_20250310_01

COUNTERPARTY CODES:
  Input is width-folded first so full-width letters and half-width katakana
  behave like their canonical forms. The script of the first letter decides:
  - kana:        Hepburn romanization, uppercased, first 6 letters
  - ideographic: first two characters, each as base-36 of its code point
  - otherwise:   ASCII letters and digits, uppercased, first 6
  An empty result becomes "X". Codes are not unique; uniqueness of
  management numbers comes from the persisted sequence (see sequencer.go).

SEE ALSO:
  - sequencer.go: reserves sequence numbers per counterparty, product and day
*/
package identifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"

	"github.com/warp/console-buyback/core"
)

var (
	productCodePattern      = regexp.MustCompile(`^[NSMO][A-Z0-9]{1,2}$`)
	managementNumberPattern = regexp.MustCompile(`^[A-Z0-9]+_[A-Z0-9]{2,3}_\d{8}_\d{2}$`)
	modelCodePattern        = regexp.MustCompile(`^\d{2}$`)
)

// MaxSequence is the highest per-day sequence a management number can carry.
const MaxSequence = 99

// UnknownModelCode is used for hardware models missing from the table.
const UnknownModelCode = "99"

const maxCodeLength = 6

// =============================================================================
// PRODUCT CODES
// =============================================================================

var manufacturerLetters = map[core.Manufacturer]string{
	core.ManufacturerNintendo:  "N",
	core.ManufacturerSony:      "S",
	core.ManufacturerMicrosoft: "M",
	core.ManufacturerOther:     "O",
}

// modelCodes maps a normalised model name to its two-digit code.
var modelCodes = map[core.Manufacturer]map[string]string{
	core.ManufacturerNintendo: {
		"switch":      "01",
		"switch oled": "02",
		"switch lite": "03",
		"switch 2":    "04",
	},
	core.ManufacturerSony: {
		"ps5":         "01",
		"ps5 digital": "02",
		"ps4":         "03",
		"ps4 pro":     "04",
	},
	core.ManufacturerMicrosoft: {
		"series x": "01",
		"series s": "02",
		"one x":    "03",
	},
}

// normalizeModel lowercases, collapses spaces and strips brand prefixes so
// "Nintendo Switch OLED" and "switch  oled" resolve to the same key.
func normalizeModel(model string) string {
	m := strings.ToLower(width.Fold.String(model))
	m = strings.Join(strings.Fields(m), " ")
	for _, prefix := range []string{"nintendo ", "xbox ", "sony "} {
		m = strings.TrimPrefix(m, prefix)
	}
	m = strings.ReplaceAll(m, "playstation ", "ps")
	m = strings.ReplaceAll(m, "playstation", "ps")
	m = strings.ReplaceAll(m, " edition", "")
	return m
}

// ModelCode returns the two-digit code for a hardware model, or
// UnknownModelCode.
func ModelCode(manufacturer core.Manufacturer, model string) string {
	if code, ok := modelCodes[manufacturer][normalizeModel(model)]; ok {
		return code
	}
	return UnknownModelCode
}

// ProductCode derives the product code. A two-digit override wins over the
// model table. Unknown hardware models get UnknownModelCode rather than an
// error.
func ProductCode(manufacturer core.Manufacturer, typ core.ProductType, model, override string) string {
	letter, ok := manufacturerLetters[manufacturer]
	if !ok {
		letter = manufacturerLetters[core.ManufacturerOther]
	}
	if typ == core.ProductSoftware {
		return letter + "S"
	}
	if modelCodePattern.MatchString(override) {
		return letter + override
	}
	return letter + ModelCode(manufacturer, model)
}

func ValidProductCode(code string) bool {
	return productCodePattern.MatchString(code)
}

// =============================================================================
// MANAGEMENT NUMBERS
// =============================================================================

// ManagementNumber formats one management number. sequence must be 1..99.
func ManagementNumber(counterpartyName, productCode string, date time.Time, sequence int) (string, error) {
	if sequence < 1 || sequence > MaxSequence {
		return "", core.NewValidationError("sequence", "must be between 1 and %d, got %d", MaxSequence, sequence)
	}
	if !ValidProductCode(productCode) {
		return "", core.NewValidationError("productCode", "invalid product code %q", productCode)
	}
	return formatManagementNumber(CounterpartyCode(counterpartyName), productCode, date, sequence), nil
}

func formatManagementNumber(cpCode, productCode string, date time.Time, sequence int) string {
	return fmt.Sprintf("%s_%s_%s_%02d", cpCode, productCode, date.Format("20060102"), sequence)
}

func ValidManagementNumber(s string) bool {
	return managementNumberPattern.MatchString(s)
}

// =============================================================================
// COUNTERPARTY CODES
// =============================================================================

type script int

const (
	scriptLatin script = iota
	scriptKana
	scriptHan
)

func isKana(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana) || r == 'ー'
}

func detectScript(s string) script {
	for _, r := range s {
		switch {
		case isKana(r):
			return scriptKana
		case unicode.Is(unicode.Han, r):
			return scriptHan
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return scriptLatin
		}
	}
	return scriptLatin
}

// CounterpartyCode derives the short uppercase code used as the first
// segment of a management number.
func CounterpartyCode(name string) string {
	s := width.Fold.String(strings.TrimSpace(name))

	var code string
	switch detectScript(s) {
	case scriptKana:
		code = truncate(romanize(s), maxCodeLength)
	case scriptHan:
		code = hanCode(s)
	default:
		code = truncate(asciiAlnum(s), maxCodeLength)
	}
	if code == "" {
		return "X"
	}
	return code
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func asciiAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func hanCode(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		b.WriteString(strings.ToUpper(strconv.FormatInt(int64(r), 36)))
		n++
		if n == 2 {
			break
		}
	}
	return b.String()
}
