package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/chadiek/mock-interview/internal/markup"
	"github.com/chadiek/mock-interview/internal/stream"
)

var (
	replayChunk   int
	replaySteps   bool
	replayOpening bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a recorded generation response",
	Long: `Feeds a recorded generation response through the stream parser in
fixed-size fragments and prints the suggester text, the interviewer text and
any telemetry. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().IntVar(&replayChunk, "chunk", 16, "fragment size in bytes")
	replayCmd.Flags().BoolVar(&replaySteps, "steps", false, "print the visible channels after every fragment")
	replayCmd.Flags().BoolVar(&replayOpening, "opening", false, "decode as an opening line (all text is interviewer)")
}

var (
	labelStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF"))
	suggesterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	interviewerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)

	tierStyles = map[markup.Tier]lipgloss.Style{
		markup.Mild:     lipgloss.NewStyle().Italic(true),
		markup.Strong:   lipgloss.NewStyle().Bold(true),
		markup.Critical: lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#FF00FF")),
	}
)

func runReplay(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), replay(string(data), replayChunk, replaySteps, replayOpening))
	return nil
}

// replay decodes body in chunk-sized fragments and renders the result.
func replay(body string, chunk int, steps, opening bool) string {
	if chunk <= 0 {
		chunk = len(body) + 1
	}
	var out strings.Builder
	p := stream.NewParser()
	if opening {
		p = stream.NewOpeningParser()
	}
	for i, frag := range fragments(body, chunk) {
		st := p.Feed(frag)
		if steps {
			fmt.Fprintf(&out, "%s %s | %s\n",
				dimStyle.Render(fmt.Sprintf("#%02d", i+1)),
				suggesterStyle.Render(st.Suggester),
				interviewerStyle.Render(st.Interviewer))
		}
	}
	final := p.Finalize()

	out.WriteString(labelStyle.Render("suggester") + "\n")
	out.WriteString(renderEmphasis(final.Suggester, suggesterStyle) + "\n")
	out.WriteString(labelStyle.Render("interviewer") + "\n")
	out.WriteString(renderEmphasis(final.Interviewer, interviewerStyle) + "\n")
	if !opening && !final.SeparatorSeen && final.Suggester != "" {
		out.WriteString(dimStyle.Render("(no separator: whole response is suggester text)") + "\n")
	}
	switch {
	case final.Telemetry != nil:
		out.WriteString(labelStyle.Render("telemetry") + "\n" + string(final.Telemetry) + "\n")
	case final.MalformedTelemetry:
		out.WriteString(warnStyle.Render("malformed telemetry left in visible text") + "\n")
	}
	return out.String()
}

func fragments(body string, chunk int) []string {
	var out []string
	for len(body) > chunk {
		out = append(out, body[:chunk])
		body = body[chunk:]
	}
	return append(out, body)
}

func renderEmphasis(text string, base lipgloss.Style) string {
	var b strings.Builder
	for _, sp := range markup.Parse(text) {
		style, ok := tierStyles[sp.Tier]
		if !ok {
			style = base
		}
		b.WriteString(style.Render(sp.Text))
	}
	return b.String()
}
