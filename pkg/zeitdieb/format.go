package zeitdieb

import (
	"math"
	"strconv"
	"strings"
)

// Format defaults and limits.
const (
	DefaultWidth = 5
	MaxWidth     = 200
)

// FormatSpec controls how a snapshot is rendered.
type FormatSpec struct {
	// Width is the width of the time column in cells.
	Width int
	// Bar renders times as proportional bars instead of numbers.
	Bar bool
	// Log scales bars logarithmically. Only valid with Bar.
	Log bool
	// Thresholds are severity cutoffs in seconds, strictly descending.
	Thresholds []float64
}

// DefaultFormat returns the spec used when no format text is given.
func DefaultFormat() FormatSpec {
	return FormatSpec{Width: DefaultWidth}
}

// ParseFormat parses "[width][flags][:threshold[,threshold...]]".
//
// Flags are "b" (bar plot) and "l" (logarithmic bars, requires "b").
// Thresholds must be non-negative and strictly descending because tiers are
// matched from the highest cutoff down.
func ParseFormat(text string) (FormatSpec, error) {
	spec := DefaultFormat()
	text = strings.TrimSpace(text)

	head, list, hasThresholds := strings.Cut(text, ":")

	digits := 0
	for digits < len(head) && head[digits] >= '0' && head[digits] <= '9' {
		digits++
	}

	if digits > 0 {
		width, err := strconv.Atoi(head[:digits])
		if err != nil || width <= 0 {
			return FormatSpec{}, &FormatError{Spec: text, Reason: "width must be a positive integer"}
		}

		if width > MaxWidth {
			return FormatSpec{}, &FormatError{Spec: text, Reason: "width exceeds " + strconv.Itoa(MaxWidth)}
		}

		spec.Width = width
	}

	if err := parseFlags(&spec, text, head[digits:]); err != nil {
		return FormatSpec{}, err
	}

	if hasThresholds && strings.TrimSpace(list) != "" {
		thresholds, err := parseThresholds(text, list)
		if err != nil {
			return FormatSpec{}, err
		}

		spec.Thresholds = thresholds
	}

	return spec, nil
}

// MustParseFormat is ParseFormat for constant specs; it panics on error.
func MustParseFormat(text string) FormatSpec {
	spec, err := ParseFormat(text)
	if err != nil {
		panic(err)
	}

	return spec
}

func parseFlags(spec *FormatSpec, text, flags string) error {
	for _, r := range flags {
		switch r {
		case 'b':
			if spec.Bar {
				return &FormatError{Spec: text, Reason: "duplicate flag 'b'"}
			}

			spec.Bar = true
		case 'l':
			if spec.Log {
				return &FormatError{Spec: text, Reason: "duplicate flag 'l'"}
			}

			spec.Log = true
		default:
			return &FormatError{Spec: text, Reason: "unknown flag " + strconv.QuoteRune(r)}
		}
	}

	if spec.Log && !spec.Bar {
		return &FormatError{Spec: text, Reason: "flag 'l' requires 'b'"}
	}

	return nil
}

func parseThresholds(text, list string) ([]float64, error) {
	items := strings.Split(list, ",")
	thresholds := make([]float64, 0, len(items))

	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, &FormatError{Spec: text, Reason: "empty threshold"}
		}

		value, err := strconv.ParseFloat(item, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &FormatError{Spec: text, Reason: "threshold " + strconv.Quote(item) + " is not a number"}
		}

		if value < 0 {
			return nil, &FormatError{Spec: text, Reason: "threshold " + strconv.Quote(item) + " is negative"}
		}

		if i > 0 && value >= thresholds[i-1] {
			return nil, &FormatError{Spec: text, Reason: "thresholds must be strictly descending"}
		}

		thresholds = append(thresholds, value)
	}

	return thresholds, nil
}

// String returns the canonical text of the spec; ParseFormat(s.String())
// yields s again.
func (s FormatSpec) String() string {
	var b strings.Builder

	b.WriteString(strconv.Itoa(s.Width))

	if s.Bar {
		b.WriteByte('b')
	}

	if s.Log {
		b.WriteByte('l')
	}

	for i, t := range s.Thresholds {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte(',')
		}

		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	}

	return b.String()
}

// Tier is a severity bucket. Tier 0 is the most severe; Neutral means no
// threshold was met.
type Tier int

// Neutral is the tier of values below every threshold.
const Neutral Tier = -1

// Classify returns the tier of a value in seconds: the index of the first
// (highest) threshold that the value meets or exceeds.
func (s FormatSpec) Classify(seconds float64) Tier {
	for i, t := range s.Thresholds {
		if seconds >= t {
			return Tier(i)
		}
	}

	return Neutral
}
