package project

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/reel/internal/clip"
)

// Markdown renders the project as a storyboard sheet: a header with the
// budget usage, then one section per clip headed by its preview headline.
func Markdown(p *Project, maxSeconds float64) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", p.Title)
	budget := clip.BudgetOf(p.Clips, maxSeconds)
	fmt.Fprintf(&sb, "- **Duration:** %s\n", budget.FormatUsage())
	fmt.Fprintf(&sb, "- **Clips:** %d\n", len(p.Clips))
	fmt.Fprintf(&sb, "- **Created:** %s\n", p.CreatedAt)

	for i, c := range p.Clips {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "## Clip %d (%gs)\n\n", i+1, c.DurationSeconds)
		if h := clip.HeadlineOf(c.ScriptText).String(); h != "" {
			fmt.Fprintf(&sb, "**%s**\n\n", h)
		}
		for _, line := range strings.Split(strings.TrimSpace(c.ScriptText), "\n") {
			fmt.Fprintf(&sb, "> %s\n", line)
		}
		if c.MovementText != "" {
			fmt.Fprintf(&sb, "\n_Movement:_ %s\n", c.MovementText)
		}
		if c.HasMedia() {
			fmt.Fprintf(&sb, "\n[Video](%s)\n", c.MediaLink)
		}
	}
	return sb.String()
}

// HTML renders the storyboard sheet as a standalone HTML document.
func HTML(p *Project, maxSeconds float64) (string, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(p, maxSeconds)), &body); err != nil {
		return "", err
	}

	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", template.HTMLEscapeString(p.Title))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.String(), nil
}
