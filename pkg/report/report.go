// Package report renders the bisection driver's progress and final result
// to a terminal, using lipgloss for the coloring the teacher's ambient
// stack otherwise leaves to plain fmt.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkgbisect/pkgbisect/pkg/bisect"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	culpritStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Printer renders progress and results to an io.Writer.
type Printer struct {
	w io.Writer
}

// New returns a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Interval reports how many probes are estimated to remain.
func (p *Printer) Interval(remainingSteps int) {
	fmt.Fprintln(p.w, headingStyle.Render("bisect:"), dimStyle.Render(fmt.Sprintf("~%d probe(s) remaining", remainingSteps)))
}

// Candidates lists every publication still under suspicion.
func (p *Printer) Candidates(candidates []bisect.Candidate) {
	fmt.Fprintln(p.w, headingStyle.Render("candidates:"))
	for _, c := range candidates {
		fmt.Fprintf(p.w, "  %s\n", dimStyle.Render(fmt.Sprintf("%s@%s (%s)", c.Package, c.Version, c.Time.Format("2006-01-02T15:04:05Z"))))
	}
}

// Culprit announces the converged-upon regression.
func (p *Printer) Culprit(c bisect.Candidate) {
	fmt.Fprintln(p.w, culpritStyle.Render(fmt.Sprintf("culprit: %s@%s", c.Package, c.Version)),
		dimStyle.Render(fmt.Sprintf("published %s", c.Time.Format("2006-01-02T15:04:05Z"))))
}
