package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// namedColors maps the colour labels used in role definitions to ANSI colours.
var namedColors = map[string]lipgloss.Color{
	"black":   lipgloss.Color("0"),
	"red":     lipgloss.Color("1"),
	"green":   lipgloss.Color("2"),
	"yellow":  lipgloss.Color("3"),
	"blue":    lipgloss.Color("4"),
	"magenta": lipgloss.Color("5"),
	"cyan":    lipgloss.Color("6"),
	"white":   lipgloss.Color("7"),
	"grey":    lipgloss.Color("8"),
	"gray":    lipgloss.Color("8"),
}

// ColorFor resolves a speaker tag to a lipgloss colour. Unknown labels are passed through,
// so hex values ("#04B575") and ANSI numbers work too.
func ColorFor(tag string) lipgloss.Color {
	if c, ok := namedColors[strings.ToLower(tag)]; ok {
		return c
	}
	return lipgloss.Color(tag)
}

// Console writes each fragment to w as soon as it arrives, coloured by speaker tag.
type Console struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	mu       sync.Mutex
	styles   map[string]lipgloss.Style
}

// NewConsole creates a Console sink. Colour output is decided by the writer's terminal profile,
// so writing to a pipe or a buffer yields plain text.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:        w,
		renderer: lipgloss.NewRenderer(w),
		styles:   make(map[string]lipgloss.Style),
	}
}

func (c *Console) style(tag string) lipgloss.Style {
	if s, ok := c.styles[tag]; ok {
		return s
	}
	s := c.renderer.NewStyle().TabWidth(lipgloss.NoTabConversion)
	if tag != "" {
		s = s.Foreground(ColorFor(tag))
	}
	c.styles[tag] = s
	return s
}

// Emit renders one fragment. Newlines are written raw so multi-line fragments are not padded.
func (c *Console) Emit(speaker Speaker, fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	style := c.style(speaker.Tag)
	lines := strings.Split(fragment, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	if _, err := io.WriteString(c.w, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("console sink: %w", err)
	}
	return nil
}

// BeginTurn prints the speaker's name on its own line.
func (c *Console) BeginTurn(speaker Speaker, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, c.style(speaker.Tag).Bold(true).Render(speaker.Name))
}

// EndTurn terminates the turn's last line.
func (c *Console) EndTurn(_ Speaker, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w)
}
