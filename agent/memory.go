package agent

import (
	"strings"
)

// Default speaker prefixes used when rendering history, matching a plain chat buffer.
const (
	DefaultHumanPrefix = "Human"
	DefaultAIPrefix    = "AI"
)

// Turn is one recorded exchange: the input an agent received and the reply it produced.
type Turn struct {
	Input  string
	Output string
}

// Memory is the ordered transcript of one agent's turns. It is never truncated.
// A Memory belongs to a single Agent and is only mutated by that Agent's Respond.
type Memory struct {
	turns       []Turn
	humanPrefix string
	aiPrefix    string
}

// NewMemory creates an empty memory. humanPrefix labels inputs, aiPrefix labels outputs.
func NewMemory(humanPrefix, aiPrefix string) *Memory {
	if humanPrefix == "" {
		humanPrefix = DefaultHumanPrefix
	}
	if aiPrefix == "" {
		aiPrefix = DefaultAIPrefix
	}
	return &Memory{
		turns:       make([]Turn, 0),
		humanPrefix: humanPrefix,
		aiPrefix:    aiPrefix,
	}
}

// Append records a completed turn.
func (m *Memory) Append(input, output string) {
	m.turns = append(m.turns, Turn{Input: input, Output: output})
}

// Render returns the history as prompt text, oldest turn first.
func (m *Memory) Render() string {
	if len(m.turns) == 0 {
		return ""
	}
	lines := make([]string, 0, 2*len(m.turns))
	for _, t := range m.turns {
		lines = append(lines, m.humanPrefix+": "+t.Input, m.aiPrefix+": "+t.Output)
	}
	return strings.Join(lines, "\n")
}

// Turns returns a copy of the recorded turns.
func (m *Memory) Turns() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	return len(m.turns)
}
