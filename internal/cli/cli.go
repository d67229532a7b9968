package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/output"
	"golang.org/x/term"
)

var Version = "0.1.0"

type Globals struct {
	JSON     bool   `help:"Output as JSON" name:"json"`
	HelpJSON bool   `help:"Output command help as JSON (AI agent mode)" name:"help-json"`
	Config   string `help:"Path to config file" short:"c" type:"path"`
	Verbose  bool   `help:"Verbose output (debug logging)" short:"v"`
	Quiet    bool   `help:"Suppress non-essential output" short:"q"`
	NoColor  bool   `help:"Disable colored output" name:"no-color"`
}

type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" help:"Answer every unread message once, then exit"`
	Serve   ServeCmd   `cmd:"" help:"Answer unread messages on a fixed interval"`
	Config  ConfigCmd  `cmd:"" help:"Configuration management"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

type Context struct {
	// Base is cancelled on SIGINT/SIGTERM. Nil means context.Background.
	Base context.Context

	Config *config.Config
	// ConfigErr is the error Load returned, if any. Config then holds
	// defaults so that commands which only need usernames still work.
	ConfigErr error

	Formatter *output.Formatter
	Globals   *Globals

	// In is where prompts read from. Nil means os.Stdin.
	In     io.Reader
	reader *bufio.Reader
}

func NewContext(globals *Globals) (*Context, error) {
	formatter := output.New(globals.JSON, globals.Verbose, globals.Quiet, globals.NoColor)

	cfg, err := config.Load(globals.Config)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	return &Context{
		Config:    cfg,
		ConfigErr: err,
		Formatter: formatter,
		Globals:   globals,
	}, nil
}

func (c *Context) context() context.Context {
	if c.Base == nil {
		return context.Background()
	}
	return c.Base
}

// validConfig returns the loaded configuration once it passes Validate.
func (c *Context) validConfig() (*config.Config, error) {
	if c.ConfigErr != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", c.ConfigErr)
	}
	if c.Config == nil {
		return nil, errors.New("no configuration loaded - set the IMAP_*, SMTP_* and OPENAI_* variables or run 'askmail config init'")
	}
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}
	return c.Config, nil
}

// logLevel lets --verbose and --quiet override the configured level.
func (c *Context) logLevel() string {
	switch {
	case c.Globals != nil && c.Globals.Verbose:
		return "debug"
	case c.Globals != nil && c.Globals.Quiet:
		return "warn"
	case c.Config != nil && c.Config.LogLevel != "":
		return c.Config.LogLevel
	default:
		return "info"
	}
}

func (c *Context) input() *bufio.Reader {
	if c.reader == nil {
		in := c.In
		if in == nil {
			in = os.Stdin
		}
		c.reader = bufio.NewReader(in)
	}
	return c.reader
}

// prompt writes label to stderr and reads one trimmed line.
func (c *Context) prompt(label string) (string, error) {
	fmt.Fprint(c.Formatter.ErrWriter, label)
	line, err := c.input().ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptDefault is prompt with a value used when the answer is blank.
func (c *Context) promptDefault(label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]: ", label, def)
	} else {
		label += ": "
	}
	answer, err := c.prompt(label)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// readSecret reads without echo from a terminal, or a plain line otherwise.
func (c *Context) readSecret(label string) (string, error) {
	in := c.In
	if in == nil {
		in = os.Stdin
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.Formatter.ErrWriter, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.Formatter.ErrWriter)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(b), nil
	}
	return c.prompt(label)
}

// ConfigCmd handles configuration management
type ConfigCmd struct {
	Init           ConfigInitCmd           `cmd:"" help:"Interactive setup wizard"`
	Show           ConfigShowCmd           `cmd:"" help:"Display current configuration (secrets redacted)"`
	Validate       ConfigValidateCmd       `cmd:"" help:"Check required settings and log in to IMAP and SMTP"`
	Doctor         ConfigDoctorCmd         `cmd:"" help:"Diagnose configuration issues"`
	SetPassword    ConfigSetPasswordCmd    `cmd:"" name:"set-password" help:"Store a secret in the system keyring"`
	DeletePassword ConfigDeletePasswordCmd `cmd:"" name:"delete-password" help:"Remove a secret from the system keyring"`
}

type ConfigInitCmd struct{}

type ConfigShowCmd struct{}

type ConfigValidateCmd struct{}

type ConfigDoctorCmd struct{}

type ConfigSetPasswordCmd struct {
	Secret string `arg:"" enum:"imap,smtp,openai" help:"Which secret to store (imap, smtp, openai)"`
}

type ConfigDeletePasswordCmd struct {
	Secret string `arg:"" enum:"imap,smtp,openai" help:"Which secret to remove (imap, smtp, openai)"`
}

// VersionCmd shows version information
type VersionCmd struct{}
