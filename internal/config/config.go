package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "askmail"
	DefaultIMAPPort = 993
	DefaultSMTPPort = 587
	DefaultMailbox  = "INBOX"
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = 60 * time.Second
	DefaultFallback = "Sorry, I couldn't generate a response at this time."

	// OpenAIKeyringUser is the keyring account holding the completion key.
	OpenAIKeyringUser = "openai"
)

// Environment variable names. Case matters.
const (
	EnvIMAPHost        = "IMAP_Host"
	EnvIMAPPort        = "IMAP_Port"
	EnvIMAPUsername    = "IMAP_Username"
	EnvIMAPPassword    = "IMAP_Password"
	EnvIMAPMailbox     = "IMAP_Mailbox"
	EnvSMTPHost        = "SMTP_Host"
	EnvSMTPPort        = "SMTP_Port"
	EnvSMTPUsername    = "SMTP_Username"
	EnvSMTPPassword    = "SMTP_Password"
	EnvOpenAIEndpoint  = "OPENAI_Endpoint"
	EnvOpenAIKey       = "OPENAI_Key"
	EnvOpenAITimeout   = "OPENAI_Timeout"
	EnvInterval        = "ASKMAIL_Interval"
	EnvFallback        = "ASKMAIL_Fallback"
	EnvMaxSendAttempts = "ASKMAIL_MaxSendAttempts"
	EnvLogLevel        = "ASKMAIL_LogLevel"
	EnvLedgerPath      = "LEDGER_Path"
	EnvLedgerRedisURL  = "LEDGER_RedisURL"
)

type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	Mailbox  string `yaml:"mailbox"`
}

func (c IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type CompletionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Key      string        `yaml:"key,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`

	// BreakerThreshold is the number of consecutive failures that opens
	// the circuit. Zero disables the breaker.
	BreakerThreshold uint32        `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

type LedgerConfig struct {
	Path     string `yaml:"path,omitempty"`
	RedisURL string `yaml:"redis_url,omitempty"`
}

type Config struct {
	IMAP       IMAPConfig       `yaml:"imap"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Completion CompletionConfig `yaml:"openai"`
	Ledger     LedgerConfig     `yaml:"ledger"`

	Interval        time.Duration `yaml:"interval"`
	Fallback        string        `yaml:"fallback"`
	MaxSendAttempts int           `yaml:"max_send_attempts"`
	LogLevel        string        `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		IMAP: IMAPConfig{
			Port:    DefaultIMAPPort,
			Mailbox: DefaultMailbox,
		},
		SMTP: SMTPConfig{
			Port: DefaultSMTPPort,
		},
		Completion: CompletionConfig{
			Timeout:          DefaultTimeout,
			BreakerThreshold: 5,
			BreakerCooldown:  time.Minute,
		},
		Interval: DefaultInterval,
		Fallback: DefaultFallback,
		LogLevel: "info",
	}
}

func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load builds the configuration from defaults, the YAML file at path, the
// environment, and finally the OS keyring for any secret still empty.
// An empty path means the default location, which may be absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.readFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.fillFromKeyring()

	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found at %s", path)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = d
		return nil
	}

	str(EnvIMAPHost, &c.IMAP.Host)
	str(EnvIMAPUsername, &c.IMAP.Username)
	str(EnvIMAPPassword, &c.IMAP.Password)
	str(EnvIMAPMailbox, &c.IMAP.Mailbox)
	str(EnvSMTPHost, &c.SMTP.Host)
	str(EnvSMTPUsername, &c.SMTP.Username)
	str(EnvSMTPPassword, &c.SMTP.Password)
	str(EnvOpenAIEndpoint, &c.Completion.Endpoint)
	str(EnvOpenAIKey, &c.Completion.Key)
	str(EnvFallback, &c.Fallback)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLedgerPath, &c.Ledger.Path)
	str(EnvLedgerRedisURL, &c.Ledger.RedisURL)

	return errors.Join(
		num(EnvIMAPPort, &c.IMAP.Port),
		num(EnvSMTPPort, &c.SMTP.Port),
		num(EnvMaxSendAttempts, &c.MaxSendAttempts),
		dur(EnvOpenAITimeout, &c.Completion.Timeout),
		dur(EnvInterval, &c.Interval),
	)
}

func (c *Config) fillFromKeyring() {
	fill := func(user string, dst *string) {
		if *dst != "" || user == "" {
			return
		}
		if secret, err := keyring.Get(AppName, user); err == nil {
			*dst = secret
		}
	}
	fill(c.IMAP.Username, &c.IMAP.Password)
	fill(c.SMTP.Username, &c.SMTP.Password)
	fill(OpenAIKeyringUser, &c.Completion.Key)
}

// ValidationError lists every missing or invalid setting by its
// environment variable name.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

func (c *Config) Validate() error {
	verr := &ValidationError{}

	required := []struct {
		name  string
		value string
	}{
		{EnvIMAPHost, c.IMAP.Host},
		{EnvIMAPUsername, c.IMAP.Username},
		{EnvIMAPPassword, c.IMAP.Password},
		{EnvSMTPHost, c.SMTP.Host},
		{EnvSMTPUsername, c.SMTP.Username},
		{EnvSMTPPassword, c.SMTP.Password},
		{EnvOpenAIEndpoint, c.Completion.Endpoint},
		{EnvOpenAIKey, c.Completion.Key},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.Missing = append(verr.Missing, r.name)
		}
	}

	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		verr.Invalid = append(verr.Invalid, EnvIMAPPort)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		verr.Invalid = append(verr.Invalid, EnvSMTPPort)
	}
	if c.Completion.Timeout <= 0 {
		verr.Invalid = append(verr.Invalid, EnvOpenAITimeout)
	}
	if c.Interval <= 0 {
		verr.Invalid = append(verr.Invalid, EnvInterval)
	}
	if c.MaxSendAttempts < 0 {
		verr.Invalid = append(verr.Invalid, EnvMaxSendAttempts)
	}

	if len(verr.Missing) == 0 && len(verr.Invalid) == 0 {
		return nil
	}
	return verr
}

// Redacted returns a copy with every secret masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.IMAP.Password = mask(c.IMAP.Password)
	out.SMTP.Password = mask(c.SMTP.Password)
	out.Completion.Key = mask(c.Completion.Key)
	if c.Ledger.RedisURL != "" {
		out.Ledger.RedisURL = redactURL(c.Ledger.RedisURL)
	}
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func redactURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "********" + u[at:]
}

func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Secrets belong in the environment or the keyring.
	out := *c
	out.IMAP.Password = ""
	out.SMTP.Password = ""
	out.Completion.Key = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// KeyringUser maps a secret kind (imap, smtp, openai) to its keyring account.
func (c *Config) KeyringUser(kind string) (string, error) {
	switch strings.ToLower(kind) {
	case "imap":
		if c.IMAP.Username == "" {
			return "", fmt.Errorf("%s must be set before storing the IMAP password", EnvIMAPUsername)
		}
		return c.IMAP.Username, nil
	case "smtp":
		if c.SMTP.Username == "" {
			return "", fmt.Errorf("%s must be set before storing the SMTP password", EnvSMTPUsername)
		}
		return c.SMTP.Username, nil
	case "openai":
		return OpenAIKeyringUser, nil
	default:
		return "", fmt.Errorf("unknown secret %q (want imap, smtp or openai)", kind)
	}
}

func SetPassword(user, secret string) error {
	if user == "" {
		return errors.New("keyring user must not be empty")
	}
	return keyring.Set(AppName, user, secret)
}

func GetPassword(user string) (string, error) {
	secret, err := keyring.Get(AppName, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("no secret stored for %q - run 'askmail config set-password' to set it", user)
		}
		return "", fmt.Errorf("failed to get secret from keyring: %w", err)
	}
	return secret, nil
}

func DeletePassword(user string) error {
	return keyring.Delete(AppName, user)
}

func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
