// Package output renders command results for humans or as JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
)

type Formatter struct {
	JSON      bool
	Verbose   bool
	Quiet     bool
	NoColor   bool
	Writer    io.Writer
	ErrWriter io.Writer
}

func New(jsonOutput, verbose, quiet, noColor bool) *Formatter {
	return &Formatter{
		JSON:      jsonOutput,
		Verbose:   verbose,
		Quiet:     quiet,
		NoColor:   noColor,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Color applies attrs unless colors are off or output is JSON.
func (f *Formatter) Color(text string, attrs ...color.Attribute) string {
	if f.NoColor || f.JSON {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func (f *Formatter) Bold(text string) string {
	return f.Color(text, color.Bold)
}

func (f *Formatter) SuccessText(text string) string {
	return f.Color(text, color.FgGreen)
}

func (f *Formatter) ErrorText(text string) string {
	return f.Color(text, color.FgRed)
}

func (f *Formatter) WarningText(text string) string {
	return f.Color(text, color.FgYellow)
}

func (f *Formatter) MutedText(text string) string {
	return f.Color(text, color.FgHiBlack)
}

func (f *Formatter) Print(v interface{}) error {
	if f.JSON {
		return f.PrintJSON(v)
	}
	fmt.Fprintln(f.Writer, v)
	return nil
}

func (f *Formatter) PrintJSON(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *Formatter) PrintError(err error) {
	if f.JSON {
		f.PrintJSON(JSONResponse{Success: false, Error: err.Error()})
		return
	}
	fmt.Fprintf(f.ErrWriter, "%s %s\n", f.ErrorText("Error:"), err)
}

func (f *Formatter) PrintSuccess(message string) {
	if f.Quiet {
		return
	}
	if f.JSON {
		f.PrintJSON(JSONResponse{Success: true, Message: message})
		return
	}
	fmt.Fprintln(f.Writer, f.SuccessText("✓")+" "+message)
}

func (f *Formatter) Verbosef(format string, args ...interface{}) {
	if f.Verbose && !f.Quiet {
		fmt.Fprintln(f.Writer, f.MutedText(fmt.Sprintf(format, args...)))
	}
}

type TableWriter struct {
	w *tabwriter.Writer
}

func (f *Formatter) NewTable(headers ...string) *TableWriter {
	tw := &TableWriter{
		w: tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0),
	}
	if len(headers) > 0 {
		bold := make([]string, len(headers))
		for i, h := range headers {
			bold[i] = f.Bold(h)
		}
		fmt.Fprintln(tw.w, strings.Join(bold, "\t"))
	}
	return tw
}

func (t *TableWriter) AddRow(values ...string) {
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

func (t *TableWriter) Flush() {
	t.w.Flush()
}

type JSONResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Success wraps data in a JSONResponse. In text mode it prints nothing.
func (f *Formatter) Success(data interface{}) error {
	if f.JSON {
		return f.PrintJSON(JSONResponse{Success: true, Data: data})
	}
	return nil
}
