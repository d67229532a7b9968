package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func newTest(jsonOutput, verbose, quiet bool) (*Formatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := New(jsonOutput, verbose, quiet, true)
	f.Writer = &out
	f.ErrWriter = &errOut
	return f, &out, &errOut
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		json    bool
		verbose bool
		quiet   bool
		noColor bool
	}{
		{"default", false, false, false, false},
		{"json mode", true, false, false, false},
		{"verbose mode", false, true, false, false},
		{"quiet no color", false, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.json, tt.verbose, tt.quiet, tt.noColor)
			if f.JSON != tt.json || f.Verbose != tt.verbose || f.Quiet != tt.quiet || f.NoColor != tt.noColor {
				t.Errorf("New() = %+v", f)
			}
			if f.Writer == nil || f.ErrWriter == nil {
				t.Error("expected writers to be set")
			}
		})
	}
}

func TestColorDisabled(t *testing.T) {
	f := New(false, false, false, true)
	if got := f.ErrorText("boom"); got != "boom" {
		t.Errorf("ErrorText() = %q, want %q", got, "boom")
	}

	f = New(true, false, false, false)
	if got := f.Bold("x"); got != "x" {
		t.Errorf("Bold() in JSON mode = %q, want %q", got, "x")
	}

	f = New(false, false, false, false)
	if got := f.SuccessText("ok"); got == "ok" || !strings.Contains(got, "ok") {
		t.Errorf("SuccessText() = %q, want colored text", got)
	}
}

func TestPrint(t *testing.T) {
	f, out, _ := newTest(false, false, false)
	if err := f.Print("hello world"); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if out.String() != "hello world\n" {
		t.Errorf("Print() = %q, want %q", out.String(), "hello world\n")
	}

	f, out, _ = newTest(true, false, false)
	if err := f.Print(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(out.Bytes(), &got); err != nil || got["n"] != 1 {
		t.Errorf("Print() JSON = %q, err %v", out.String(), err)
	}
}

func TestPrintError(t *testing.T) {
	f, _, errOut := newTest(false, false, false)
	f.PrintError(errors.New("connection refused"))
	if errOut.String() != "Error: connection refused\n" {
		t.Errorf("PrintError() = %q", errOut.String())
	}

	f, out, _ := newTest(true, false, false)
	f.PrintError(errors.New("connection refused"))
	var resp JSONResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Success || resp.Error != "connection refused" {
		t.Errorf("PrintError() JSON = %+v", resp)
	}
}

func TestPrintSuccess(t *testing.T) {
	tests := []struct {
		name  string
		json  bool
		quiet bool
		want  string
	}{
		{"text", false, false, "✓ saved\n"},
		{"quiet", false, true, ""},
		{"json", true, false, "\"success\": true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, out, _ := newTest(tt.json, false, tt.quiet)
			f.PrintSuccess("saved")
			if tt.want == "" {
				if out.Len() != 0 {
					t.Errorf("PrintSuccess() wrote %q in quiet mode", out.String())
				}
				return
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("PrintSuccess() = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestVerbosef(t *testing.T) {
	f, out, _ := newTest(false, true, false)
	f.Verbosef("dialing %s", "imap.example.com:993")
	if !strings.Contains(out.String(), "dialing imap.example.com:993") {
		t.Errorf("Verbosef() = %q", out.String())
	}

	f, out, _ = newTest(false, false, false)
	f.Verbosef("hidden")
	if out.Len() != 0 {
		t.Errorf("Verbosef() without verbose wrote %q", out.String())
	}
}

func TestTableWriter(t *testing.T) {
	f, out, _ := newTest(false, false, false)
	tw := f.NewTable("KEY", "VALUE")
	tw.AddRow("IMAP_Host", "imap.example.com")
	tw.Flush()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("table = %q, want 2 lines", out.String())
	}
	if !strings.HasPrefix(lines[0], "KEY") || !strings.Contains(lines[1], "imap.example.com") {
		t.Errorf("table = %q", out.String())
	}
}

func TestSuccess(t *testing.T) {
	f, out, _ := newTest(true, false, false)
	if err := f.Success(map[string]int{"replied": 2}); err != nil {
		t.Fatalf("Success() error = %v", err)
	}
	if !strings.Contains(out.String(), "\"replied\": 2") {
		t.Errorf("Success() = %q", out.String())
	}

	f, out, _ = newTest(false, false, false)
	f.Success("ignored")
	if out.Len() != 0 {
		t.Errorf("Success() in text mode wrote %q", out.String())
	}
}
