package client

import (
	"sync"
	"time"
)

// modelPricing is USD per 1K tokens.
var modelPricing = map[string]struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}{
	"gpt-4o":            {0.0025, 0.01},
	"gpt-4o-mini":       {0.00015, 0.0006},
	"gpt-4-turbo":       {0.01, 0.03},
	"gpt-4":             {0.03, 0.06},
	"gpt-3.5-turbo":     {0.0015, 0.002},
	"gpt-3.5-turbo-16k": {0.003, 0.004},
	"gpt-5":             {0.005, 0.015},
	"gpt-5-mini":        {0.0003, 0.0012},
	"gpt-5-nano":        {0.0001, 0.0004},
}

// CalculateCost prices a call. Unknown models are priced as gpt-3.5-turbo.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, exists := modelPricing[model]
	if !exists {
		pricing = modelPricing["gpt-3.5-turbo"]
	}

	inputCost := float64(inputTokens) / 1000.0 * pricing.InputCostPer1K
	outputCost := float64(outputTokens) / 1000.0 * pricing.OutputCostPer1K
	return inputCost + outputCost
}

// TokenUsage represents token consumption and cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost_usd"`
}

func (u *TokenUsage) add(inputTokens, outputTokens int, cost float64) {
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.TotalTokens += inputTokens + outputTokens
	u.Cost += cost
}

// AgentUsage is the running total for one agent.
type AgentUsage struct {
	Agent       string     `json:"agent"`
	Usage       TokenUsage `json:"usage"`
	CallCount   int        `json:"call_count"`
	LastUpdated time.Time  `json:"last_updated"`
}

// UsageTracker accumulates token usage per agent. Safe for concurrent use.
type UsageTracker struct {
	mu           sync.RWMutex
	total        TokenUsage
	agents       map[string]*AgentUsage
	sessionStart time.Time
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		agents:       make(map[string]*AgentUsage),
		sessionStart: time.Now(),
	}
}

// Record adds one call's usage and returns its cost.
func (ut *UsageTracker) Record(agent, model string, inputTokens, outputTokens int) float64 {
	cost := CalculateCost(model, inputTokens, outputTokens)

	ut.mu.Lock()
	defer ut.mu.Unlock()

	a := ut.agents[agent]
	if a == nil {
		a = &AgentUsage{Agent: agent}
		ut.agents[agent] = a
	}
	a.Usage.add(inputTokens, outputTokens, cost)
	a.CallCount++
	a.LastUpdated = time.Now()

	ut.total.add(inputTokens, outputTokens, cost)
	return cost
}

func (ut *UsageTracker) Total() TokenUsage {
	ut.mu.RLock()
	defer ut.mu.RUnlock()
	return ut.total
}

// Agent returns a copy of one agent's usage; the zero value if it has made no calls.
func (ut *UsageTracker) Agent(name string) AgentUsage {
	ut.mu.RLock()
	defer ut.mu.RUnlock()

	if a, ok := ut.agents[name]; ok {
		return *a
	}
	return AgentUsage{Agent: name}
}

func (ut *UsageTracker) SessionDuration() time.Duration {
	return time.Since(ut.sessionStart)
}
