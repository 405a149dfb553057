package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"

	"galileo/sink"
)

// Binding is the generation-client configuration attached to one agent.
type Binding struct {
	Agent       string
	Model       string
	Temperature float64
	Stream      bool
}

// Generator produces a finite, non-restartable sequence of text fragments for a prompt.
// A non-nil error ends the sequence.
type Generator interface {
	Stream(ctx context.Context, binding Binding, prompt string) iter.Seq2[string, error]
}

// RetryPolicy bounds how many times a failed generation call is restarted.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	return b
}

// Config holds the configuration parameters for an agent.
type Config struct {
	Role Role
	// Peer is the counterpart's name, used to label inputs in the rendered history.
	Peer    string
	Binding Binding
	Retry   RetryPolicy
}

// GenerationError is returned when every attempt of a generation call failed.
type GenerationError struct {
	Agent    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("agent %s: generation failed after %d attempt(s): %v", e.Agent, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Agent binds a role, its private memory and a generator.
type Agent struct {
	role    Role
	memory  *Memory
	binding Binding
	retry   RetryPolicy
	gen     Generator
	sink    sink.TokenSink
	speaker sink.Speaker
	logger  *log.Logger
}

// New creates an Agent with an empty memory.
func New(cfg Config, gen Generator, s sink.TokenSink, logger *log.Logger) (*Agent, error) {
	if cfg.Role.Name == "" {
		return nil, errors.New("agent: role has no name")
	}
	if gen == nil {
		return nil, fmt.Errorf("agent %s: no generator", cfg.Role.Name)
	}
	if s == nil {
		s = sink.Discard
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Binding.Agent == "" {
		cfg.Binding.Agent = cfg.Role.Name
	}

	return &Agent{
		role:    cfg.Role,
		memory:  NewMemory(cfg.Peer, cfg.Role.Name),
		binding: cfg.Binding,
		retry:   cfg.Retry,
		gen:     gen,
		sink:    s,
		speaker: sink.Speaker{Name: cfg.Role.Name, Tag: cfg.Role.Tag},
		logger:  logger.With("agent", cfg.Role.Name),
	}, nil
}

func (a *Agent) Name() string {
	return a.role.Name
}

// Speaker is the identity attached to every fragment this agent emits.
func (a *Agent) Speaker() sink.Speaker {
	return a.speaker
}

func (a *Agent) Role() Role {
	return a.role
}

// Memory exposes the agent's transcript. Callers must not Append to it.
func (a *Agent) Memory() *Memory {
	return a.memory
}

// Respond streams a reply to input through the sink and returns the full text.
// Memory is updated once, after a complete stream. A failed or cancelled attempt is discarded
// and a retry starts a fresh stream.
func (a *Agent) Respond(ctx context.Context, input string) (string, error) {
	prompt := a.role.Resolve(a.memory.Render(), input)
	turn := a.memory.Len()
	attempts := 0

	output, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		text, err := a.stream(ctx, prompt, turn)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return text, err
	},
		backoff.WithBackOff(a.retry.backOff()),
		backoff.WithMaxTries(uint(a.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			a.logger.Warn("generation failed, retrying",
				"turn", turn,
				"attempt", attempts,
				"max_attempts", a.retry.MaxAttempts,
				"delay", delay,
				"error", err,
			)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &GenerationError{Agent: a.role.Name, Attempts: attempts, Err: err}
	}

	a.memory.Append(input, output)
	a.logger.Debug("turn recorded", "turn", turn, "chars", len(output))
	return output, nil
}

func (a *Agent) stream(ctx context.Context, prompt string, turn int) (string, error) {
	var acc strings.Builder
	index := 0
	for fragment, err := range a.gen.Stream(ctx, a.binding, prompt) {
		if err != nil {
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		a.emit(turn, index, fragment)
		acc.WriteString(fragment)
		index++
	}
	return acc.String(), nil
}

// emit forwards a fragment to the sink. Sink failures, including panics, are logged and dropped.
func (a *Agent) emit(turn, index int, fragment string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("token sink panicked", "turn", turn, "fragment", index, "panic", r)
		}
	}()
	if err := a.sink.Emit(a.speaker, fragment); err != nil {
		a.logger.Warn("token sink failed", "turn", turn, "fragment", index, "error", err)
	}
}
