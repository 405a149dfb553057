package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galileo/agent"
)

func noEnv(string) string { return "" }

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load([]string{"gravity"}, noEnv, "")
	require.NoError(t, err)

	assert.Equal(t, "gravity", cfg.Topic)
	assert.Equal(t, "Hello.", cfg.Seed)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.TUI)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Empty(t, cfg.APIKey)

	assert.Equal(t, "Simplicio", cfg.Roles[0].Name)
	assert.Equal(t, "red", cfg.Roles[0].Tag)
	assert.Equal(t, "gpt-3.5-turbo-16k", cfg.Roles[0].Model)
	assert.Equal(t, "Salvati", cfg.Roles[1].Name)
	assert.Equal(t, "green", cfg.Roles[1].Tag)
	assert.Equal(t, "gpt-4", cfg.Roles[1].Model)
	for _, r := range cfg.Roles {
		assert.InDelta(t, 0.7, r.Temperature, 1e-9)
		assert.True(t, r.Streaming())
	}
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := load([]string{
		"--api-key", "sk-flag",
		"--base-url", "http://localhost:11434/v1/",
		"--seed", "Buongiorno.",
		"--tui",
		"--log-level", "debug",
		"--max-attempts", "5",
		"the delayed-choice quantum eraser",
	}, envOf(map[string]string{EnvOpenAIAPIKey: "sk-env"}), "")
	require.NoError(t, err)

	assert.Equal(t, "the delayed-choice quantum eraser", cfg.Topic)
	assert.Equal(t, "sk-flag", cfg.APIKey)
	assert.Equal(t, "http://localhost:11434/v1/", cfg.BaseURL)
	assert.Equal(t, "Buongiorno.", cfg.Seed)
	assert.True(t, cfg.TUI)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoad_CredentialPrecedence(t *testing.T) {
	dotenv := writeFile(t, ".env", "OPENAI_API_KEY=sk-dotenv\nOPENAI_BASE_URL=http://dotenv/\n")

	cfg, err := load([]string{"gravity"}, noEnv, dotenv)
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", cfg.APIKey)
	assert.Equal(t, "http://dotenv/", cfg.BaseURL)

	cfg, err = load([]string{"gravity"}, envOf(map[string]string{EnvOpenAIAPIKey: "sk-env"}), dotenv)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.APIKey)

	assert.NotEqual(t, "http://dotenv/", os.Getenv(EnvOpenAIBaseURL), ".env must not be exported")
}

func TestLoad_Errors(t *testing.T) {
	_, err := load([]string{}, noEnv, "")
	assert.Error(t, err, "topic is required")

	_, err = load([]string{"   "}, noEnv, "")
	assert.Error(t, err)

	_, err = load([]string{"--max-attempts", "0", "gravity"}, noEnv, "")
	assert.Error(t, err)

	_, err = load([]string{"--log-level", "loud", "gravity"}, noEnv, "")
	assert.Error(t, err)

	_, err = load([]string{"--roles", filepath.Join(t.TempDir(), "missing.yaml"), "gravity"}, noEnv, "")
	assert.Error(t, err)
}

func TestLoad_Help(t *testing.T) {
	_, err := load([]string{"--help"}, noEnv, "")
	assert.True(t, errors.Is(err, ErrHelp))
}

func TestLoad_RolesFile(t *testing.T) {
	path := writeFile(t, "roles.yaml", `
roles:
  - name: Sagredo
    tag: yellow
    model: gpt-4o-mini
    temperature: 1.1
    stream: false
    template: "{history} / {input}"
  - name: Salvati
    tag: "#04B575"
    model: gpt-4o
    temperature: 0.3
    template: "About {topic}: {history} / {input}"
`)

	cfg, err := load([]string{"--roles", path, "tides"}, noEnv, "")
	require.NoError(t, err)

	assert.Equal(t, "Sagredo", cfg.Roles[0].Name)
	assert.False(t, cfg.Roles[0].Streaming())
	assert.True(t, cfg.Roles[1].Streaming())

	agents, err := cfg.AgentConfigs()
	require.NoError(t, err)

	assert.Equal(t, "Salvati", agents[0].Peer)
	assert.Equal(t, "Sagredo", agents[1].Peer)
	assert.Equal(t, agent.Binding{Agent: "Sagredo", Model: "gpt-4o-mini", Temperature: 1.1, Stream: false}, agents[0].Binding)
	assert.Equal(t, "About tides: h / i", agents[1].Role.Resolve("h", "i"))
	assert.Equal(t, cfg.Retry, agents[0].Retry)
}

func TestParseRoles_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"one role", "roles:\n  - {name: A, model: m, template: x}\n", "exactly 2"},
		{"unnamed", "roles:\n  - {name: '', model: m}\n  - {name: B, model: m}\n", "no name"},
		{"no model", "roles:\n  - {name: A}\n  - {name: B, model: m}\n", "no model"},
		{"duplicate names", "roles:\n  - {name: A, model: m}\n  - {name: A, model: m}\n", "both roles"},
		{"hot temperature", "roles:\n  - {name: A, model: m, temperature: 3}\n  - {name: B, model: m}\n", "outside"},
		{"unknown field", "roles:\n  - {name: A, model: m, colour: red}\n  - {name: B, model: m}\n", "colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoles([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAgentConfigs_DefaultRolesResolve(t *testing.T) {
	cfg, err := load([]string{"gravity"}, noEnv, "")
	require.NoError(t, err)

	agents, err := cfg.AgentConfigs()
	require.NoError(t, err)

	prompt := agents[0].Role.Resolve("", "Hello.")
	assert.Equal(t, 1, strings.Count(prompt, "gravity"))
	assert.Contains(t, prompt, "Salvati:\nHello.\n")
	assert.NotContains(t, prompt, "{")

	prompt = agents[1].Role.Resolve("Simplicio: hi\nSalvati: hello", "What is gravity?")
	assert.Contains(t, prompt, "Simplicio:\nWhat is gravity?\n")
	assert.NotContains(t, prompt, "{")
}

func TestAgentConfigs_TemplateError(t *testing.T) {
	cfg := &Config{
		Topic: "gravity",
		Roles: [2]RoleSpec{
			{Name: "A", Model: "m", Template: "{history}"},
			{Name: "B", Model: "m", Template: "{history}{input}"},
		},
	}

	_, err := cfg.AgentConfigs()

	var te *agent.TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "A", te.Role)
}
