// Package console prints styled progress lines for the command line.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	substepStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

// Printer writes steps and substeps to w.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Step prints a top-level stage.
func (p *Printer) Step(msg string) {
	p.println(stepStyle.Render(msg))
}

// Substep prints an indented detail of the current stage.
func (p *Printer) Substep(msg string) {
	p.println("  " + substepStyle.Render(msg))
}

// Error prints a failure.
func (p *Printer) Error(msg string) {
	p.println(errorStyle.Render(msg))
}

// Field prints a "label: value" line.
func (p *Printer) Field(label string, value any) {
	p.println(fmt.Sprintf("  %s %v", labelStyle.Render(label+":"), value))
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
