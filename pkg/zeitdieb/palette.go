package zeitdieb

import (
	"strconv"

	"github.com/fatih/color"
)

// Palette decorates rendered cells.
type Palette interface {
	// Cell decorates a time cell of the given tier out of tiers.
	Cell(text string, tier Tier, tiers int) string
	// Total decorates a function total.
	Total(text string, tier Tier, tiers int) string
	// Title decorates a function name in a report header.
	Title(name string) string
}

// PlainPalette leaves text unchanged.
type PlainPalette struct{}

func (PlainPalette) Cell(text string, _ Tier, _ int) string { return text }
func (PlainPalette) Total(text string, _ Tier, _ int) string { return text }
func (PlainPalette) Title(name string) string { return name }

// MarkerPalette prefixes tiered cells with a bracketed tier name, for
// output that cannot carry color such as log files.
type MarkerPalette struct{}

func (MarkerPalette) Cell(text string, tier Tier, tiers int) string {
	if tier == Neutral {
		return text
	}

	return "[" + TierName(tier, tiers) + "]" + text
}

func (p MarkerPalette) Total(text string, tier Tier, tiers int) string {
	return p.Cell(text, tier, tiers)
}

func (MarkerPalette) Title(name string) string { return name }

// TierName names a tier; the most severe tier is "critical".
func TierName(tier Tier, tiers int) string {
	names := []string{"critical", "warning", "notice"}
	if tier == Neutral {
		return "neutral"
	}

	if tiers <= len(names) && int(tier) < len(names) {
		return names[tier]
	}

	return "tier" + strconv.Itoa(int(tier))
}

type rgb struct{ r, g, b int }

// Tier colors from the most severe down. More tiers interpolate between them.
var tierAnchors = []rgb{
	{255, 0, 0},
	{255, 215, 0},
	{255, 255, 200},
}

var titleColor = rgb{0, 255, 255}

// ANSIPalette colors tiers with 24-bit terminal colors. Values below every
// threshold stay uncolored.
type ANSIPalette struct{}

// NewANSIPalette returns a palette that always emits escape sequences; pick
// it only when the output is a terminal.
func NewANSIPalette() ANSIPalette {
	return ANSIPalette{}
}

func (ANSIPalette) Cell(text string, tier Tier, tiers int) string {
	if tier == Neutral {
		return text
	}

	c := tierColor(tier, tiers)

	return paint(c).Sprint(text)
}

func (ANSIPalette) Total(text string, tier Tier, tiers int) string {
	if tier == Neutral {
		bold := color.New(color.Bold)
		bold.EnableColor()

		return bold.Sprint(text)
	}

	return paint(tierColor(tier, tiers)).Add(color.Bold).Sprint(text)
}

func (ANSIPalette) Title(name string) string {
	return paint(titleColor).Add(color.Bold).Sprint(name)
}

func paint(c rgb) *color.Color {
	out := color.RGB(c.r, c.g, c.b)
	out.EnableColor()

	return out
}

func tierColor(tier Tier, tiers int) rgb {
	if tiers <= len(tierAnchors) {
		return tierAnchors[tier]
	}

	// Spread the tiers evenly over the anchor gradient.
	pos := float64(tier) / float64(tiers-1) * float64(len(tierAnchors)-1)

	seg := int(pos)
	if seg >= len(tierAnchors)-1 {
		return tierAnchors[len(tierAnchors)-1]
	}

	frac := pos - float64(seg)
	from, to := tierAnchors[seg], tierAnchors[seg+1]

	return rgb{
		r: from.r + int(frac*float64(to.r-from.r)),
		g: from.g + int(frac*float64(to.g-from.g)),
		b: from.b + int(frac*float64(to.b-from.b)),
	}
}
