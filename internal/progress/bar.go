package progress

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const defaultWidth = 40

// Bar is a textual progress bar.
// An Upper bound not greater than Lower means the total is unknown.
type Bar struct {
	Current      int64
	Lower        int64
	Upper        int64
	Width        int
	ShowPercent  bool
	ShowBoundary bool
}

// NewBar creates a bar between lower and upper with percentage and boundaries shown
func NewBar(lower, upper int64) *Bar {
	return &Bar{
		Current:      lower,
		Lower:        lower,
		Upper:        upper,
		Width:        defaultWidth,
		ShowPercent:  true,
		ShowBoundary: true,
	}
}

// Set updates the current value
func (b *Bar) Set(current int64) {
	b.Current = current
}

// Known reports whether the upper bound is known
func (b *Bar) Known() bool {
	return b.Upper > b.Lower
}

// Fraction returns completion in [0, 1]; zero when the upper bound is unknown
func (b *Bar) Fraction() float64 {
	if !b.Known() {
		return 0
	}
	f := float64(b.Current-b.Lower) / float64(b.Upper-b.Lower)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// String renders the bar
func (b *Bar) String() string {
	if !b.Known() {
		return humanize.IBytes(uint64(max(b.Current, 0))) + " downloaded"
	}

	width := b.Width
	if width <= 0 {
		width = defaultWidth
	}
	filled := int(b.Fraction() * float64(width))

	var sb strings.Builder
	if b.ShowBoundary {
		sb.WriteByte('[')
	}
	sb.WriteString(strings.Repeat("#", filled))
	sb.WriteString(strings.Repeat(" ", width-filled))
	if b.ShowBoundary {
		sb.WriteByte(']')
	}
	if b.ShowPercent {
		fmt.Fprintf(&sb, " %3d%%", int(b.Fraction()*100))
	}
	fmt.Fprintf(&sb, " %s / %s",
		humanize.IBytes(uint64(max(b.Current, 0))),
		humanize.IBytes(uint64(b.Upper)))
	return sb.String()
}
