// Package console prints the feed as styled terminal lines and reads module
// paths to add from standard input.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss/v2"

	"github.com/listenupapp/watchmodule/internal/feed"
)

// ANSI sequences moving the cursor to the start of the previous line and
// clearing it.
const rewriteLastLine = "\033[1A\r\033[2K"

type styles struct {
	time   lipgloss.Style
	module lipgloss.Style
	levels map[feed.Level]lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		time:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		module: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		levels: map[feed.Level]lipgloss.Style{
			feed.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			feed.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
			feed.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			feed.LevelError: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		},
	}
}

// Options configures a Console.
type Options struct {
	// Color enables styling and in-place rewrites of replaced lines.
	Color bool
}

// Console writes feed lines to a terminal.
type Console struct {
	out    io.Writer
	styles styles
	opts   Options
	// last is the feed index of the most recently printed line.
	last int
	mu   sync.Mutex
}

// New creates a Console writing to out.
func New(out io.Writer, opts Options) *Console {
	return &Console{
		out:    out,
		styles: defaultStyles(),
		opts:   opts,
		last:   -1,
	}
}

// Format renders one line without a trailing newline.
func (c *Console) Format(line feed.Line) string {
	ts := line.Time.Format("15:04:05")
	module := line.Module
	text := line.Text

	if !c.opts.Color {
		return fmt.Sprintf("%s %s %s", ts, module, indent(text, len(ts)+len(module)+2))
	}

	style, ok := c.styles.levels[line.Level]
	if !ok {
		style = c.styles.levels[feed.LevelInfo]
	}
	return fmt.Sprintf("%s %s %s",
		c.styles.time.Render(ts),
		c.styles.module.Render(module),
		style.Render(indent(text, len(ts)+len(module)+2)))
}

// indent aligns continuation lines of multi-line text under the first one.
func indent(text string, width int) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	return strings.ReplaceAll(strings.TrimRight(text, "\n"), "\n", "\n"+strings.Repeat(" ", width))
}

// Print writes line. A replaced line overwrites the previous terminal line
// when it is the one being replaced; otherwise it is printed anew.
func (c *Console) Print(line feed.Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	if line.Replaced && c.opts.Color && line.Index == c.last && !strings.Contains(line.Text, "\n") {
		b.WriteString(rewriteLastLine)
	}
	b.WriteString(c.Format(line))
	b.WriteByte('\n')

	c.last = line.Index
	_, err := io.WriteString(c.out, b.String())
	return err
}

// Run prints lines until the channel is closed or ctx is done.
func (c *Console) Run(ctx context.Context, lines <-chan feed.Line) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Print(line); err != nil {
				return fmt.Errorf("write console line: %w", err)
			}
		}
	}
}

// ReadPaths reads one module path per line from in and passes each
// non-empty one to add. It returns at EOF or when ctx is done; errors from
// add are reported by add itself and do not stop reading.
func ReadPaths(ctx context.Context, in io.Reader, add func(path string) error) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		path := strings.TrimSpace(scanner.Text())
		if path == "" {
			continue
		}
		_ = add(path)
	}
	return scanner.Err()
}
