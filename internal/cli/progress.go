package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tutu-network/pfp/internal/app/progress"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Redrawn on stderr while a batch runs.
// Shows: [=============>................]  42% | 21/50 files | 2 errors | ETA 3s

const barWidth = 30 // Characters for the progress bar

type progressBar struct {
	started time.Time
	done    bool
}

func newProgressBar() *progressBar {
	return &progressBar{started: time.Now()}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// update renders one snapshot. The last call, with every file settled,
// finishes the line.
func (p *progressBar) update(s progress.Snapshot) {
	if p.done {
		return
	}
	pct := s.Percent()

	clearLine()
	fmt.Fprintf(os.Stderr, "  %s %3.0f%% | %d/%d files", renderBar(pct), pct, s.Settled(), s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(os.Stderr, " | %d errors", s.Failed)
	}
	if s.Cancelled > 0 {
		fmt.Fprintf(os.Stderr, " | %d cancelled", s.Cancelled)
	}
	fmt.Fprintf(os.Stderr, " | %s", p.eta(pct, time.Now()))

	if s.Settled() >= s.Total {
		fmt.Fprintln(os.Stderr)
		p.done = true
	}
}

func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	// Build the bar: [=======>............]
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	default:
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
}

func (p *progressBar) eta(pct float64, now time.Time) string {
	if pct <= 0 || pct >= 100 {
		return "ETA --"
	}

	elapsed := now.Sub(p.started).Seconds()
	if elapsed < 1 {
		return "ETA --"
	}

	remaining := elapsed/(pct/100) - elapsed
	if remaining < 0 {
		remaining = 0
	}

	if remaining < 60 {
		return fmt.Sprintf("ETA %ds", int(remaining))
	}
	if remaining < 3600 {
		return fmt.Sprintf("ETA %dm%ds", int(remaining)/60, int(remaining)%60)
	}
	return fmt.Sprintf("ETA %dh%dm", int(remaining)/3600, (int(remaining)%3600)/60)
}

func clearLine() {
	fmt.Fprintf(os.Stderr, "\r\033[K")
}
