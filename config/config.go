// Package config turns command-line flags, the environment, an optional .env file
// and role definitions into the settings needed to start a dialogue.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"galileo/agent"
)

const (
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	DotenvFile       = ".env"
)

//go:embed roles.yaml
var defaultRoles []byte

// Options are the command-line flags.
type Options struct {
	APIKey      string `short:"k" long:"api-key" description:"API key for the generation service (default: $OPENAI_API_KEY or .env)"`
	BaseURL     string `long:"base-url" description:"OpenAI-compatible endpoint (default: $OPENAI_BASE_URL)"`
	Roles       string `short:"r" long:"roles" description:"YAML file replacing the built-in roles"`
	Seed        string `short:"s" long:"seed" default:"Hello." description:"Bootstrap input for the first turn"`
	TUI         bool   `long:"tui" description:"Render the dialogue in a full-screen terminal UI"`
	LogLevel    string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log verbosity"`
	MaxAttempts int    `long:"max-attempts" default:"3" description:"Generation attempts per turn before halting"`

	Args struct {
		Topic string `positional-arg-name:"TOPIC" description:"Topic of the dialogue"`
	} `positional-args:"yes" required:"yes"`
}

// RoleSpec is one participant as written in a roles file.
type RoleSpec struct {
	Name        string  `yaml:"name"`
	Tag         string  `yaml:"tag"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Stream      *bool   `yaml:"stream"`
	Template    string  `yaml:"template"`
}

// Streaming reports whether replies are streamed; streaming is on unless disabled.
func (r RoleSpec) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

type rolesFile struct {
	Roles []RoleSpec `yaml:"roles"`
}

// Config is the resolved startup configuration.
type Config struct {
	Topic    string
	APIKey   string
	BaseURL  string
	Seed     string
	TUI      bool
	LogLevel log.Level
	Retry    agent.RetryPolicy
	Roles    [2]RoleSpec
}

// ErrHelp is returned when --help was requested; the usage text has already been printed.
var ErrHelp = errors.New("help requested")

// Load parses args (without the program name) and resolves the credential from the flag,
// then $OPENAI_API_KEY, then ./.env. The process environment is never modified.
func Load(args []string) (*Config, error) {
	return load(args, os.Getenv, DotenvFile)
}

func load(args []string, getenv func(string) string, dotenvPath string) (*Config, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "galileo"
	parser.Usage = "[OPTIONS] TOPIC"

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr.Message)
			return nil, ErrHelp
		}
		return nil, err
	}

	topic := strings.TrimSpace(opts.Args.Topic)
	if topic == "" {
		return nil, errors.New("topic must not be empty")
	}
	if opts.MaxAttempts < 1 {
		return nil, fmt.Errorf("--max-attempts must be at least 1, got %d", opts.MaxAttempts)
	}

	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	dotenv := readDotenv(dotenvPath)
	lookup := func(flagValue, key string) string {
		if flagValue != "" {
			return flagValue
		}
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	roles, err := loadRoles(opts.Roles)
	if err != nil {
		return nil, err
	}

	retry := agent.DefaultRetryPolicy()
	retry.MaxAttempts = opts.MaxAttempts

	return &Config{
		Topic:    topic,
		APIKey:   lookup(opts.APIKey, EnvOpenAIAPIKey),
		BaseURL:  lookup(opts.BaseURL, EnvOpenAIBaseURL),
		Seed:     opts.Seed,
		TUI:      opts.TUI,
		LogLevel: level,
		Retry:    retry,
		Roles:    roles,
	}, nil
}

// readDotenv returns the variables in path without exporting them. A missing file is not an error.
func readDotenv(path string) map[string]string {
	if path == "" {
		return nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil
	}
	return values
}

func loadRoles(path string) ([2]RoleSpec, error) {
	data := defaultRoles
	source := "built-in roles"
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return [2]RoleSpec{}, fmt.Errorf("failed to read roles file: %w", err)
		}
		source = path
	}

	roles, err := ParseRoles(data)
	if err != nil {
		return [2]RoleSpec{}, fmt.Errorf("%s: %w", source, err)
	}
	return roles, nil
}

// ParseRoles decodes and validates a roles document. Exactly two roles are required.
func ParseRoles(data []byte) ([2]RoleSpec, error) {
	var file rolesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return [2]RoleSpec{}, fmt.Errorf("failed to parse roles: %w", err)
	}

	if len(file.Roles) != 2 {
		return [2]RoleSpec{}, fmt.Errorf("expected exactly 2 roles, got %d", len(file.Roles))
	}
	for i, r := range file.Roles {
		if strings.TrimSpace(r.Name) == "" {
			return [2]RoleSpec{}, fmt.Errorf("role %d has no name", i+1)
		}
		if r.Model == "" {
			return [2]RoleSpec{}, fmt.Errorf("role %s has no model", r.Name)
		}
		if r.Temperature < 0 || r.Temperature > 2 {
			return [2]RoleSpec{}, fmt.Errorf("role %s: temperature %.2f outside [0, 2]", r.Name, r.Temperature)
		}
	}
	if file.Roles[0].Name == file.Roles[1].Name {
		return [2]RoleSpec{}, fmt.Errorf("both roles are named %q", file.Roles[0].Name)
	}

	return [2]RoleSpec{file.Roles[0], file.Roles[1]}, nil
}

// AgentConfigs binds the topic into both role templates. The first config speaks first.
// A *agent.TemplateError is returned if either template is invalid.
func (c *Config) AgentConfigs() ([2]agent.Config, error) {
	var out [2]agent.Config
	for i, rs := range c.Roles {
		role, err := agent.NewRole(rs.Name, rs.Tag, rs.Template, c.Topic)
		if err != nil {
			return out, err
		}
		out[i] = agent.Config{
			Role: role,
			Peer: c.Roles[1-i].Name,
			Binding: agent.Binding{
				Agent:       rs.Name,
				Model:       rs.Model,
				Temperature: rs.Temperature,
				Stream:      rs.Streaming(),
			},
			Retry: c.Retry,
		}
	}
	return out, nil
}
