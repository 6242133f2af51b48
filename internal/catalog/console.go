package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// ConsoleWriter prints one line per destination.
type ConsoleWriter struct {
	Out io.Writer
}

func NewConsoleWriter() *ConsoleWriter {
	return &ConsoleWriter{Out: os.Stdout}
}

func (w *ConsoleWriter) Write(_ context.Context, c Catalog) error {
	count := color.New(color.FgGreen, color.Bold)
	none := color.New(color.FgYellow)
	dest := color.New(color.FgCyan)

	for _, d := range c.Destinations() {
		n := c.Tally[d]
		style := count
		if n == 0 {
			style = none
		}
		if _, err := fmt.Fprintf(w.Out, "transferred %s %s to %s\n", style.Sprint(n), plural(n), dest.Sprint(d)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w.Out, "run %s: %d %s saved\n", c.RunID, c.Total(), plural(c.Total()))
	return err
}

func plural(n int) string {
	if n == 1 {
		return "file"
	}
	return "files"
}
