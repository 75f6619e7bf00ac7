package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal status display.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default cyan theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00d7ff"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Section is one labeled pane of a frame. Lines fixes how many content
// rows the pane renders; when the content is longer, the last rows win.
type Section struct {
	Label   string
	Lines   int
	Content func() []string // Dynamic content getter
}

// Frame renders a bordered status display with a title, labeled
// sections, and a help line. It sizes itself from the section line
// counts, so it can be repainted in place without owning the screen.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Height returns the number of terminal rows Render will produce.
func (f Frame) Height() int {
	h := 4 // top border, title, bottom border, help
	for _, sec := range f.Sections {
		h += 1 + sectionLines(sec)
	}
	return h
}

// Render renders the frame to a string at the given width.
func (f Frame) Render(width int) string {
	if width < 20 {
		width = 20
	}

	bc := f.Styles.Border
	maxContentWidth := width - 4

	var lines []string

	// Top border
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// Title line: │ title [status]    │
	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	titleLine := bc.Render("│") + " " + title + " " + status +
		strings.Repeat(" ", padding) + " " + bc.Render("│")
	lines = append(lines, titleLine)

	// Render each section
	for _, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec.Label, sec.Content(), sectionLines(sec), width, maxContentWidth)...)
	}

	// Bottom border
	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))

	// Help line
	lines = append(lines, f.Styles.Help.Render(f.Help))

	return strings.Join(lines, "\n")
}

func sectionLines(sec Section) int {
	if sec.Lines > 0 {
		return sec.Lines
	}
	return 5
}

// renderSection renders a single section with embedded label.
func (f Frame) renderSection(bc lipgloss.Style, label string, content []string, height, width, maxContentWidth int) []string {
	var lines []string

	// Separator with embedded label: ├─Label────────┤
	labelText := f.Styles.Label.Render(label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	labelSep := bc.Render("├") + bc.Render("─") + labelText +
		bc.Render(strings.Repeat("─", padding)) + bc.Render("┤")
	lines = append(lines, labelSep)

	// Content lines (show last N lines)
	startIdx := 0
	if len(content) > height {
		startIdx = len(content) - height
	}

	for i := 0; i < height; i++ {
		text := ""
		idx := startIdx + i
		if idx < len(content) {
			text = content[idx]
		}
		if maxContentWidth > 1 && lipgloss.Width(text) > maxContentWidth {
			text = truncateString(text, maxContentWidth-1) + "…"
		}
		line := bc.Render("│") + " " + text +
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(text))) + " " + bc.Render("│")
		lines = append(lines, line)
	}

	return lines
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
