// Package progressbar prints a terminal progress bar for long-running
// pipeline phases (self-play, training batches) within one cycle.
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Bar is a synchronously-updated progress bar: the caller calls
// Increment/Display directly on its own goroutine, with no internal
// channels or background goroutines. A training cycle's progress must
// be deterministic and easy to unit-test, so this adapts the
// concurrent, channel-driven variant down to its manually-driven
// sibling's update model rather than the channel-based one.
type Bar struct {
	width           float64
	maxProgress     float64
	currentProgress float64
	label           string
	startTime       time.Time
	out             io.Writer
}

// New returns a Bar width characters wide that reaches 100% after max
// calls to Increment, displaying label before the bar on each render.
func New(width, max int, label string, out io.Writer) *Bar {
	return &Bar{
		width:       float64(width),
		maxProgress: float64(max),
		label:       label,
		startTime:   time.Now(),
		out:         out,
	}
}

// Increment advances the bar by one step, clamped at maxProgress.
func (b *Bar) Increment() {
	if b.currentProgress < b.maxProgress {
		b.currentProgress++
	}
}

// Display renders the current state of the bar to out.
func (b *Bar) Display() {
	var bar strings.Builder
	bar.WriteString(b.label)
	bar.WriteString(" |")

	filled := b.currentProgress / b.maxProgress * b.width
	for i := 0.0; i < filled; i++ {
		bar.WriteString("█")
	}
	for i := filled; i < b.width; i++ {
		bar.WriteString(" ")
	}
	bar.WriteString(fmt.Sprintf("| [%.2f%% | elapsed: %v]",
		b.currentProgress/b.maxProgress*100, time.Since(b.startTime).Truncate(time.Second)))

	fmt.Fprintf(b.out, "\n\033[1A\033[K%v", bar.String())
}

// Done reports whether the bar has reached its configured maximum.
func (b *Bar) Done() bool { return b.currentProgress >= b.maxProgress }

// Close finishes the bar at 100% and advances past it.
func (b *Bar) Close() {
	b.currentProgress = b.maxProgress
	b.Display()
	fmt.Fprintln(b.out)
}
