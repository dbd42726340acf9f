package tui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	mdRendererMu sync.Mutex
	// keyed by wrap width; WithAutoStyle queries the terminal and can block
	mdRenderers = map[int]*glamour.TermRenderer{}
)

// renderMarkdown renders a task description, falling back to the raw text.
func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	mdRendererMu.Lock()
	defer mdRendererMu.Unlock()
	r := mdRenderers[width]
	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		mdRenderers[width] = rr
		r = rr
	}

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
