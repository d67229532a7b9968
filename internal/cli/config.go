package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/imap"
	"github.com/bscott/askmail/internal/logging"
	"github.com/bscott/askmail/internal/smtp"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// checkTimeout bounds each network probe made by validate and doctor.
const checkTimeout = 15 * time.Second

func (c *Context) configPath() string {
	if c.Globals != nil && c.Globals.Config != "" {
		return c.Globals.Config
	}
	path, _ := config.ConfigPath()
	return path
}

func (c *ConfigInitCmd) Run(ctx *Context) error {
	w := ctx.Formatter.ErrWriter
	fmt.Fprintln(w, "askmail Configuration Wizard")
	fmt.Fprintln(w, "============================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Settings are written to the config file; passwords and the API key")
	fmt.Fprintln(w, "go to the system keyring.")
	fmt.Fprintln(w)

	cfg := config.DefaultConfig()
	if ctx.Config != nil {
		*cfg = *ctx.Config
	}

	var err error
	if cfg.IMAP.Host, err = ctx.promptDefault("IMAP host", cfg.IMAP.Host); err != nil {
		return err
	}
	if cfg.IMAP.Port, err = ctx.promptPort("IMAP port", cfg.IMAP.Port); err != nil {
		return err
	}
	if cfg.IMAP.Username, err = ctx.promptDefault("IMAP username", cfg.IMAP.Username); err != nil {
		return err
	}
	if cfg.IMAP.Mailbox, err = ctx.promptDefault("Mailbox", cfg.IMAP.Mailbox); err != nil {
		return err
	}

	smtpHost := cfg.SMTP.Host
	if smtpHost == "" {
		smtpHost = cfg.IMAP.Host
	}
	if cfg.SMTP.Host, err = ctx.promptDefault("SMTP host", smtpHost); err != nil {
		return err
	}
	if cfg.SMTP.Port, err = ctx.promptPort("SMTP port", cfg.SMTP.Port); err != nil {
		return err
	}
	smtpUser := cfg.SMTP.Username
	if smtpUser == "" {
		smtpUser = cfg.IMAP.Username
	}
	if cfg.SMTP.Username, err = ctx.promptDefault("SMTP username", smtpUser); err != nil {
		return err
	}

	if cfg.Completion.Endpoint, err = ctx.promptDefault("Completion endpoint URL", cfg.Completion.Endpoint); err != nil {
		return err
	}

	if cfg.IMAP.Host == "" || cfg.IMAP.Username == "" || cfg.SMTP.Host == "" || cfg.Completion.Endpoint == "" {
		return errors.New("IMAP host, IMAP username, SMTP host and completion endpoint are required")
	}

	fmt.Fprintln(w)
	secrets := []struct {
		kind  string
		label string
	}{
		{"imap", "IMAP password (blank to skip): "},
		{"smtp", "SMTP password (blank to reuse IMAP password when usernames match): "},
		{"openai", "Completion API key (blank to skip): "},
	}
	stored := map[string]string{}
	for _, s := range secrets {
		secret, err := ctx.readSecret(s.label)
		if err != nil {
			return err
		}
		if secret == "" && s.kind == "smtp" && cfg.SMTP.Username == cfg.IMAP.Username {
			secret = stored["imap"]
		}
		if secret == "" {
			continue
		}
		user, err := cfg.KeyringUser(s.kind)
		if err != nil {
			return err
		}
		if err := config.SetPassword(user, secret); err != nil {
			return fmt.Errorf("failed to store %s secret in keyring: %w", s.kind, err)
		}
		stored[s.kind] = secret
	}

	path := ctx.configPath()
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	ctx.Config = cfg
	ctx.ConfigErr = nil

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Configuration saved to %s (%d secret(s) stored in keyring)", path, len(stored)))
	return nil
}

func (c *Context) promptPort(label string, def int) (int, error) {
	answer, err := c.promptDefault(label, strconv.Itoa(def))
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(answer)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid %s: %s", strings.ToLower(label), answer)
	}
	return port, nil
}

func (c *ConfigShowCmd) Run(ctx *Context) error {
	if ctx.ConfigErr != nil {
		return fmt.Errorf("failed to load configuration: %w", ctx.ConfigErr)
	}
	if ctx.Config == nil {
		return errors.New("no configuration loaded")
	}

	cfg := ctx.Config.Redacted()
	path := ctx.configPath()

	if ctx.Formatter.JSON {
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"config_file": path,
			"imap": map[string]interface{}{
				"host":     cfg.IMAP.Host,
				"port":     cfg.IMAP.Port,
				"username": cfg.IMAP.Username,
				"password": cfg.IMAP.Password,
				"mailbox":  cfg.IMAP.Mailbox,
			},
			"smtp": map[string]interface{}{
				"host":     cfg.SMTP.Host,
				"port":     cfg.SMTP.Port,
				"username": cfg.SMTP.Username,
				"password": cfg.SMTP.Password,
			},
			"openai": map[string]interface{}{
				"endpoint":          cfg.Completion.Endpoint,
				"key":               cfg.Completion.Key,
				"timeout":           cfg.Completion.Timeout.String(),
				"breaker_threshold": cfg.Completion.BreakerThreshold,
				"breaker_cooldown":  cfg.Completion.BreakerCooldown.String(),
			},
			"ledger": map[string]interface{}{
				"path":      cfg.Ledger.Path,
				"redis_url": cfg.Ledger.RedisURL,
			},
			"interval":          cfg.Interval.String(),
			"fallback":          cfg.Fallback,
			"max_send_attempts": cfg.MaxSendAttempts,
			"log_level":         cfg.LogLevel,
		})
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	w := ctx.Formatter.Writer
	fmt.Fprintf(w, "%s %s\n\n", ctx.Formatter.Bold("Configuration file:"), path)
	fmt.Fprint(w, string(data))
	return nil
}

func (c *ConfigValidateCmd) Run(ctx *Context) error {
	cfg, err := ctx.validConfig()
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx.context(), checkTimeout)
	defer cancel()

	ctx.Formatter.Verbosef("Logging in to IMAP at %s...", cfg.IMAP.Addr())
	session, err := imap.Open(checkCtx, cfg.IMAP, logging.Discard())
	if err != nil {
		return fmt.Errorf("IMAP check failed: %w", err)
	}
	session.Close()

	ctx.Formatter.Verbosef("Logging in to SMTP at %s...", cfg.SMTP.Addr())
	if err := smtp.NewClient(cfg.SMTP, logging.Discard()).Verify(checkCtx); err != nil {
		return fmt.Errorf("SMTP check failed: %w", err)
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Configuration is valid: logged in to %s and %s", cfg.IMAP.Addr(), cfg.SMTP.Addr()))
	return nil
}

func (c *ConfigSetPasswordCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	user, err := cfg.KeyringUser(c.Secret)
	if err != nil {
		return err
	}

	secret, err := ctx.readSecret(fmt.Sprintf("%s secret for %s: ", strings.ToUpper(c.Secret), user))
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("secret must not be empty")
	}

	if err := config.SetPassword(user, secret); err != nil {
		return fmt.Errorf("failed to store secret in keyring: %w", err)
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Stored %s secret for %s in the system keyring", c.Secret, user))
	return nil
}

func (c *ConfigDeletePasswordCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	user, err := cfg.KeyringUser(c.Secret)
	if err != nil {
		return err
	}

	if err := config.DeletePassword(user); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no %s secret stored for %s", c.Secret, user)
		}
		return fmt.Errorf("failed to delete secret from keyring: %w", err)
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Removed %s secret for %s from the system keyring", c.Secret, user))
	return nil
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type doctor struct {
	ctx     *Context
	results []checkResult
}

func (d *doctor) add(name, status, message string) {
	d.results = append(d.results, checkResult{Name: name, Status: status, Message: message})

	f := d.ctx.Formatter
	if f.JSON {
		return
	}
	var prefix string
	switch status {
	case "ok":
		prefix = f.SuccessText("[OK]")
	case "warn":
		prefix = f.WarningText("[WARN]")
	default:
		prefix = f.ErrorText("[FAIL]")
	}
	if message != "" {
		fmt.Fprintf(f.Writer, "%s %s - %s\n", prefix, name, message)
	} else {
		fmt.Fprintf(f.Writer, "%s %s\n", prefix, name)
	}
}

func (d *doctor) healthy() bool {
	for _, r := range d.results {
		if r.Status == "fail" {
			return false
		}
	}
	return true
}

func reachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// endpointAddr turns the completion URL into a host:port to probe.
func endpointAddr(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", endpoint)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func (c *ConfigDoctorCmd) Run(ctx *Context) error {
	d := &doctor{ctx: ctx}

	path := ctx.configPath()
	if _, err := os.Stat(path); err != nil {
		d.add("Config file exists", "warn", fmt.Sprintf("not found at %s - using environment only", path))
	} else {
		d.add("Config file exists", "ok", path)
	}

	cfg := ctx.Config
	if ctx.ConfigErr != nil {
		d.add("Config valid", "fail", ctx.ConfigErr.Error())
	} else {
		d.add("Config valid", "ok", "")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		d.add("Required settings", "fail", err.Error())
	} else {
		d.add("Required settings", "ok", "")
	}

	for _, kind := range []string{"imap", "smtp", "openai"} {
		name := fmt.Sprintf("%s secret in keyring", strings.ToUpper(kind))
		user, err := cfg.KeyringUser(kind)
		if err != nil {
			d.add(name, "fail", "cannot check - "+err.Error())
			continue
		}
		if _, err := config.GetPassword(user); err == nil {
			d.add(name, "ok", user)
			continue
		}
		if secretSet(cfg, kind) {
			d.add(name, "ok", "provided by environment or config file")
		} else {
			d.add(name, "fail", "not set - run 'askmail config set-password "+kind+"'")
		}
	}

	imapOK := cfg.IMAP.Host != "" && reachable(cfg.IMAP.Addr())
	if imapOK {
		d.add("IMAP port reachable", "ok", cfg.IMAP.Addr())
	} else {
		d.add("IMAP port reachable", "fail", fmt.Sprintf("cannot connect to %s", cfg.IMAP.Addr()))
	}

	smtpOK := cfg.SMTP.Host != "" && reachable(cfg.SMTP.Addr())
	if smtpOK {
		d.add("SMTP port reachable", "ok", cfg.SMTP.Addr())
	} else {
		d.add("SMTP port reachable", "fail", fmt.Sprintf("cannot connect to %s", cfg.SMTP.Addr()))
	}

	if addr, err := endpointAddr(cfg.Completion.Endpoint); err != nil {
		d.add("Completion endpoint reachable", "fail", "invalid endpoint: "+err.Error())
	} else if reachable(addr) {
		d.add("Completion endpoint reachable", "ok", addr)
	} else {
		d.add("Completion endpoint reachable", "fail", fmt.Sprintf("cannot connect to %s", addr))
	}

	checkCtx, cancel := context.WithTimeout(ctx.context(), checkTimeout)
	defer cancel()

	switch {
	case !imapOK:
		d.add("IMAP login succeeds", "fail", "cannot test - IMAP port not reachable")
	case cfg.IMAP.Username == "" || cfg.IMAP.Password == "":
		d.add("IMAP login succeeds", "fail", "cannot test - credentials not configured")
	default:
		session, err := imap.Open(checkCtx, cfg.IMAP, logging.Discard())
		if err != nil {
			d.add("IMAP login succeeds", "fail", err.Error())
		} else {
			session.Close()
			d.add("IMAP login succeeds", "ok", "")
		}
	}

	switch {
	case !smtpOK:
		d.add("SMTP login succeeds", "fail", "cannot test - SMTP port not reachable")
	case cfg.SMTP.Username == "" || cfg.SMTP.Password == "":
		d.add("SMTP login succeeds", "fail", "cannot test - credentials not configured")
	default:
		if err := smtp.NewClient(cfg.SMTP, logging.Discard()).Verify(checkCtx); err != nil {
			d.add("SMTP login succeeds", "fail", err.Error())
		} else {
			d.add("SMTP login succeeds", "ok", "")
		}
	}

	if ctx.Formatter.JSON {
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"checks":  d.results,
			"healthy": d.healthy(),
		})
	}

	return nil
}

func secretSet(cfg *config.Config, kind string) bool {
	switch kind {
	case "imap":
		return cfg.IMAP.Password != ""
	case "smtp":
		return cfg.SMTP.Password != ""
	default:
		return cfg.Completion.Key != ""
	}
}
