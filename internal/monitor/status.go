// Package monitor reports search progress on the console and samples run
// statistics while the search is going.
package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"optiattack/internal/model"
)

const refreshInterval = 500 * time.Millisecond

const ansiUpAndErase = "\x1b[1A\x1b[2K"

// Progress is the budget view the status updater reads.
type Progress interface {
	PercentageUsedBudget() float64
	AverageTimeMS() float64
	AverageActionSize() float64
	SecondsSinceLastImprovement() float64
}

type Sizer interface {
	Size() int
}

// StatusUpdater prints a two line progress block after evaluations and the
// pruner's decisions. On a terminal the block is rewritten in place.
type StatusUpdater struct {
	mu sync.Mutex

	out      io.Writer
	tty      bool
	progress Progress
	archive  Sizer
	now      func() time.Time

	label lipgloss.Style
	value lipgloss.Style

	first       bool
	passed      string
	lastUpdate  time.Time
	lastPercent int
	archiveSize int
}

func NewStatusUpdater(out io.Writer, progress Progress, archive Sizer) *StatusUpdater {
	if out == nil {
		out = os.Stdout
	}
	r := lipgloss.NewRenderer(out)
	return &StatusUpdater{
		out:      out,
		tty:      IsTerminal(out),
		progress: progress,
		archive:  archive,
		now:      time.Now,
		label:    r.NewStyle().Bold(true),
		value:    r.NewStyle().Foreground(lipgloss.Color("6")),
		first:    true,
		passed:   "-1",
	}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewActionEvaluated refreshes the block at most every 500ms and only when
// the printed budget percentage moved.
func (s *StatusUpdater) NewActionEvaluated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.progress.PercentageUsedBudget() * 100
	current := fmt.Sprintf("%.3f", used)

	if s.first {
		if s.tty {
			fmt.Fprint(s.out, "\n\n")
		}
		s.first = false
	}

	now := s.now()
	if current == s.passed || now.Sub(s.lastUpdate) <= refreshInterval {
		return
	}
	s.lastUpdate = now
	s.passed = current

	if pct := int(used); pct > s.lastPercent {
		s.lastPercent = pct
		s.archiveSize = s.archive.Size()
	}

	budgetLine := fmt.Sprintf("%s %s%%", s.render(s.label, "* Consumed search budget:"), s.render(s.value, current))
	statsLine := fmt.Sprintf("%s %s; time per test: %.1fms (%.1f actions); since last improvement: %ds",
		s.render(s.label, "* Archive size:"),
		s.render(s.value, humanize.Comma(int64(s.archiveSize))),
		s.progress.AverageTimeMS(),
		s.progress.AverageActionSize(),
		int64(s.progress.SecondsSinceLastImprovement()),
	)

	var b strings.Builder
	if s.tty {
		b.WriteString(ansiUpAndErase)
		b.WriteString(ansiUpAndErase)
	}
	b.WriteString(budgetLine)
	b.WriteByte('\n')
	b.WriteString(statsLine)
	b.WriteByte('\n')
	fmt.Fprint(s.out, b.String())
}

// render styles text only on a terminal so redirected output stays plain.
func (s *StatusUpdater) render(style lipgloss.Style, text string) string {
	if !s.tty {
		return text
	}
	return style.Render(text)
}

func (s *StatusUpdater) StartMinimization(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "* Minimizing solution with %s actions\n", humanize.Comma(int64(total)))
}

func (s *StatusUpdater) RemoveAction(processed, total int, a model.Action) {
	s.decision("removed", processed, total, a)
}

func (s *StatusUpdater) KeptAction(processed, total int, a model.Action) {
	s.decision("kept", processed, total, a)
}

func (s *StatusUpdater) decision(verb string, processed, total int, a model.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "* Pruning %d/%d: %s %s\n", processed, total, verb, a)
}
