package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bscott/askmail/internal/config"
	"github.com/goccy/go-json"
)

type HelpSchema struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Commands    []CommandSchema `json:"commands"`
	GlobalFlags []FlagSchema    `json:"global_flags"`
	Environment []EnvSchema     `json:"environment"`
}

type CommandSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Args        []ArgSchema     `json:"args,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
	Examples    []string        `json:"examples,omitempty"`
}

type FlagSchema struct {
	Name        string `json:"name"`
	Short       string `json:"short,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description"`
}

type ArgSchema struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

type EnvSchema struct {
	Name        string `json:"name"`
	Required    bool   `json:"required,omitempty"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description"`
}

func GenerateHelpJSON(cli *CLI) ([]byte, error) {
	schema := HelpSchema{
		Name:        config.AppName,
		Version:     Version,
		Description: "Answers unread email with an LLM completion endpoint over IMAP/SMTP",
		GlobalFlags: extractFieldsFromStruct(reflect.TypeOf(cli.Globals)),
		Commands:    extractCommands(cli),
		Environment: environment(),
	}

	return json.MarshalIndent(schema, "", "  ")
}

func extractCommands(cli *CLI) []CommandSchema {
	return []CommandSchema{
		{
			Name:        "run",
			Description: "Answer every unread message once, then exit. Exits 1 only when the mailbox cannot be opened or listed.",
			Examples:    []string{"askmail run", "askmail run --json"},
		},
		{
			Name:        "serve",
			Description: "Answer unread messages on a fixed interval until interrupted",
			Flags:       extractFieldsFromStruct(reflect.TypeOf(cli.Serve)),
			Examples:    []string{"askmail serve", "askmail serve --interval 1m"},
		},
		extractConfigCommands(),
		{
			Name:        "version",
			Description: "Show version information",
			Examples:    []string{"askmail version", "askmail version --json"},
		},
	}
}

func extractConfigCommands() CommandSchema {
	secretArg := []ArgSchema{
		{Name: "secret", Type: "string", Required: true, Description: "One of imap, smtp, openai"},
	}

	return CommandSchema{
		Name:        "config",
		Description: "Configuration management",
		Subcommands: []CommandSchema{
			{
				Name:        "config init",
				Description: "Interactive setup wizard; secrets are stored in the system keyring",
				Examples:    []string{"askmail config init"},
			},
			{
				Name:        "config show",
				Description: "Display current configuration with secrets redacted",
				Examples:    []string{"askmail config show", "askmail config show --json"},
			},
			{
				Name:        "config validate",
				Description: "Check required settings, then log in to IMAP and SMTP",
				Examples:    []string{"askmail config validate"},
			},
			{
				Name:        "config doctor",
				Description: "Diagnose configuration and connectivity issues",
				Examples:    []string{"askmail config doctor", "askmail config doctor --json"},
			},
			{
				Name:        "config set-password",
				Description: "Read a secret from the terminal and store it in the system keyring",
				Args:        secretArg,
				Examples:    []string{"askmail config set-password imap", "askmail config set-password openai"},
			},
			{
				Name:        "config delete-password",
				Description: "Remove a secret from the system keyring",
				Args:        secretArg,
				Examples:    []string{"askmail config delete-password smtp"},
			},
		},
	}
}

func environment() []EnvSchema {
	return []EnvSchema{
		{Name: config.EnvIMAPHost, Required: true, Description: "IMAP server host"},
		{Name: config.EnvIMAPPort, Default: fmt.Sprint(config.DefaultIMAPPort), Description: "IMAP server port (implicit TLS)"},
		{Name: config.EnvIMAPUsername, Required: true, Description: "IMAP login; also the From address of replies"},
		{Name: config.EnvIMAPPassword, Required: true, Description: "IMAP password (or keyring)"},
		{Name: config.EnvIMAPMailbox, Default: config.DefaultMailbox, Description: "Mailbox to watch"},
		{Name: config.EnvSMTPHost, Required: true, Description: "SMTP server host"},
		{Name: config.EnvSMTPPort, Default: fmt.Sprint(config.DefaultSMTPPort), Description: "SMTP server port (implicit TLS)"},
		{Name: config.EnvSMTPUsername, Required: true, Description: "SMTP login"},
		{Name: config.EnvSMTPPassword, Required: true, Description: "SMTP password (or keyring)"},
		{Name: config.EnvOpenAIEndpoint, Required: true, Description: "Chat completion endpoint URL"},
		{Name: config.EnvOpenAIKey, Required: true, Description: "Bearer key for the endpoint (or keyring)"},
		{Name: config.EnvOpenAITimeout, Default: config.DefaultTimeout.String(), Description: "Completion request timeout"},
		{Name: config.EnvInterval, Default: config.DefaultInterval.String(), Description: "Time between runs in serve mode"},
		{Name: config.EnvFallback, Description: "Reply body used when no answer is available"},
		{Name: config.EnvMaxSendAttempts, Default: "0", Description: "Failed sends before a message is flagged and given up on; 0 retries forever"},
		{Name: config.EnvLogLevel, Default: "info", Description: "error, warn, info or debug"},
		{Name: config.EnvLedgerPath, Description: "SQLite file recording failed sends"},
		{Name: config.EnvLedgerRedisURL, Description: "Redis URL recording failed sends (wins over the SQLite path)"},
	}
}

// extractFieldsFromStruct reads kong struct tags into flag schemas.
func extractFieldsFromStruct(t reflect.Type) []FlagSchema {
	var flags []FlagSchema

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip embedded structs
		if field.Anonymous {
			continue
		}

		helpTag := field.Tag.Get("help")
		if helpTag == "" {
			continue
		}
		if _, isArg := field.Tag.Lookup("arg"); isArg {
			continue
		}

		flagName := "--" + strings.ToLower(field.Name)
		if nameTag := field.Tag.Get("name"); nameTag != "" {
			flagName = "--" + nameTag
		}

		flag := FlagSchema{
			Name:        flagName,
			Type:        getTypeString(field.Type),
			Description: helpTag,
			Default:     field.Tag.Get("default"),
		}
		if _, required := field.Tag.Lookup("required"); required {
			flag.Required = true
		}
		if short := field.Tag.Get("short"); short != "" {
			flag.Short = "-" + short
		}

		flags = append(flags, flag)
	}

	return flags
}

func getTypeString(t reflect.Type) string {
	if t.PkgPath() == "time" && t.Name() == "Duration" {
		return "duration"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Bool:
		return "bool"
	case reflect.Slice:
		return "[]" + getTypeString(t.Elem())
	default:
		return t.String()
	}
}

func PrintHelpJSON(cli *CLI) error {
	data, err := GenerateHelpJSON(cli)
	if err != nil {
		return fmt.Errorf("failed to generate help JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
