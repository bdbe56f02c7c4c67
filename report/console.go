package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"sshniff/analyser"
)

const boxWidth = 40

// Console prints human readable results.
type Console struct {
	w io.Writer

	red    *color.Color
	yellow *color.Color
	green  *color.Color
	cyan   *color.Color
}

// NewConsole returns a console printer writing to w. Colors follow
// color.NoColor unless noColor is set.
func NewConsole(w io.Writer, noColor bool) *Console {
	c := &Console{
		w:      w,
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		green:  color.New(color.FgGreen),
		cyan:   color.New(color.FgCyan),
	}
	if noColor {
		for _, col := range []*color.Color{c.red, c.yellow, c.green, c.cyan} {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Print(r *Report) {
	fmt.Fprintf(c.w, "\n┏━━━━ Results (run %s)\n", r.RunID)
	for i := range r.Files {
		f := &r.Files[i]
		fmt.Fprintf(c.w, "┃ File %s\n", f.File)
		if f.Error != "" {
			fmt.Fprintf(c.w, "┃ %s\n", c.red.Sprint(f.Error))
			fmt.Fprintln(c.w, "┣━━━━")
			continue
		}
		for _, id := range f.StreamIDs() {
			s := f.Sessions[id]
			c.printCore(s)
			c.printTimeline(s)
			if len(s.Keystrokes) > 0 {
				c.printKeystrokes(s)
			}
			fmt.Fprintln(c.w, "┣━━━━")
		}
		for _, id := range f.FailedIDs() {
			fmt.Fprintf(c.w, "┃ Stream %s %s\n", c.red.Sprint(id), c.red.Sprint(f.Errors[id]))
			fmt.Fprintln(c.w, "┣━━━━")
		}
	}
}

func (c *Console) printCore(s *analyser.Session) {
	alg := s.Fingerprint.Negotiated
	fmt.Fprintf(c.w, "┃ Stream %s\n", c.red.Sprint(s.Stream))
	fmt.Fprintf(c.w, "┃ Duration (UTC): %s - %s\n", s.StartUTC, s.EndUTC)
	fmt.Fprintf(c.w, "┃ KEX         %s\n", c.yellow.Sprint(alg.Kex))
	fmt.Fprintf(c.w, "┃ Encryption  %s\n", c.yellow.Sprint(alg.Encryption))
	fmt.Fprintf(c.w, "┃ MAC         %s\n", c.yellow.Sprint(alg.MAC))
	fmt.Fprintf(c.w, "┃ Compression %s\n", c.yellow.Sprint(alg.Compression))
	if s.Calibration.Obfuscated {
		fmt.Fprintf(c.w, "┃ %s\n", c.red.Sprint("Keystroke obfuscation in use, keystroke results are experimental"))
	}

	line := strings.Repeat("─", boxWidth)
	c.row("╭"+center("Client", "─")+"╮", "      ", "╭"+center("Server", "─")+"╮")
	c.row("│"+center(s.Endpoints.Client, " ")+"│", "      ", "│"+center(s.Endpoints.Server, " ")+"│")
	c.row("│"+center(s.Fingerprint.Client.Hash, " ")+"│", c.yellow.Sprint("----->"), "│"+center(s.Fingerprint.Server.Hash, " ")+"│")
	c.row("│"+center(s.Endpoints.ClientProtocol, " ")+"│", "      ", "│"+center(s.Endpoints.ServerProtocol, " ")+"│")
	c.row("╰"+line+"╯", "      ", "╰"+line+"╯")
	fmt.Fprintln(c.w, "┃")
}

func (c *Console) row(client, middle, server string) {
	fmt.Fprintf(c.w, "┃%s%s%s\n", c.green.Sprint(client), middle, c.cyan.Sprint(server))
}

func (c *Console) printTimeline(s *analyser.Session) {
	fmt.Fprintln(c.w, "┣━ Timeline of Events")
	for _, p := range s.Timeline {
		fmt.Fprintf(c.w, "┣ [%d] %s\n", p.Seq, p.Annotation)
	}
	for _, f := range s.Findings {
		fmt.Fprintf(c.w, "┣ [%d] %s\n", f.Anchor.Seq, c.yellow.Sprint(f.Anchor.Annotation))
	}
	fmt.Fprintln(c.w, "┃")
}

func (c *Console) printKeystrokes(s *analyser.Session) {
	fmt.Fprintln(c.w, "┣━ Keystroke Sequences")
	fmt.Fprintf(c.w, "┣━ %s ─ %s ─ %s\n", c.red.Sprint("tcp.seq"), c.red.Sprint("Latency μs"), c.red.Sprint("Type"))
	for _, seq := range s.Keystrokes {
		for _, k := range seq {
			if k.Kind == analyser.KindEnter && k.ResponseSize != nil {
				fmt.Fprintf(c.w, "┣╮ [%d]  ─ (%8d) ─ %s\n", k.Seq, k.Latency.Microseconds(), k.Kind)
				fmt.Fprintf(c.w, "┃╰─╼[%d]\n", *k.ResponseSize)
				continue
			}
			fmt.Fprintf(c.w, "┣  [%d]  ─ (%8d) ─ %s\n", k.Seq, k.Latency.Microseconds(), k.Kind)
		}
		fmt.Fprintln(c.w, "┣━")
	}
	fmt.Fprintln(c.w, "┃")
}

// center pads s with fill on both sides to the box width. Longer text is
// truncated.
func center(s, fill string) string {
	s = runewidth.Truncate(s, boxWidth, "…")
	gap := boxWidth - runewidth.StringWidth(s)
	left := gap / 2
	return strings.Repeat(fill, left) + s + strings.Repeat(fill, gap-left)
}
