package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/buckleypaul/railflash/internal/report"
	"github.com/buckleypaul/railflash/internal/ui"
)

// printer is the reporter used by the non-interactive commands. It writes
// one line per status and progress event and indents detail text.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) Status(text string, sev report.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, ui.StatusLine(text, sev))
}

func (p *printer) Progress(percent int, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "  [%3d%%] %s\n", percent, label)
}

func (p *printer) Detail(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		_, _ = fmt.Fprintln(p.out, ui.DimStyle.Render("    "+line))
	}
}
