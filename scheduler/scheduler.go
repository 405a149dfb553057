package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"galileo/sink"
)

// DefaultSeed is the bootstrap input handed to the first speaker.
const DefaultSeed = "Hello."

// State says whose turn it is.
type State int

const (
	AgentATurn State = iota
	AgentBTurn
)

func (s State) String() string {
	switch s {
	case AgentATurn:
		return "AGENT_A_TURN"
	case AgentBTurn:
		return "AGENT_B_TURN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Next is the transition function: strict alternation, no terminal state.
func Next(s State) State {
	if s == AgentATurn {
		return AgentBTurn
	}
	return AgentATurn
}

// Responder is one participant of the dialogue.
type Responder interface {
	Speaker() sink.Speaker
	Respond(ctx context.Context, input string) (string, error)
}

// TurnError attributes a failed turn to the agent that was speaking.
type TurnError struct {
	Agent string
	Turn  int
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %d (%s): %v", e.Turn, e.Agent, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Sink, when set, is told when each turn begins and ends.
	Sink   sink.TurnSink
	Logger *log.Logger
}

// Scheduler alternates two responders, feeding each reply to the other as its next input.
// It issues one call at a time; it is not safe for concurrent use.
type Scheduler struct {
	agents [2]Responder
	state  State
	turn   int
	sink   sink.TurnSink
	logger *log.Logger
}

func New(a, b Responder, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Scheduler{
		agents: [2]Responder{a, b},
		state:  AgentATurn,
		sink:   opts.Sink,
		logger: opts.Logger,
	}
}

// State reports whose turn is next.
func (s *Scheduler) State() State {
	return s.state
}

// Turn reports how many turns have completed.
func (s *Scheduler) Turn() int {
	return s.turn
}

// Current returns the responder whose turn is next.
func (s *Scheduler) Current() Responder {
	return s.agents[s.state]
}

// Step runs one turn with input and advances to the other agent.
// On error the state does not change.
func (s *Scheduler) Step(ctx context.Context, input string) (string, error) {
	responder := s.Current()
	speaker := responder.Speaker()

	if s.sink != nil {
		s.sink.BeginTurn(speaker, s.turn)
	}
	start := time.Now()
	output, err := responder.Respond(ctx, input)
	if s.sink != nil {
		s.sink.EndTurn(speaker, s.turn)
	}
	if err != nil {
		return "", &TurnError{Agent: speaker.Name, Turn: s.turn, Err: err}
	}

	s.logger.Debug("turn completed",
		"turn", s.turn,
		"agent", speaker.Name,
		"state", s.state,
		"chars", len(output),
		"duration", time.Since(start),
	)

	s.turn++
	s.state = Next(s.state)
	return output, nil
}

// Run seeds the first turn and alternates until ctx is cancelled or a turn fails.
// Cancellation returns ctx.Err(); a failed turn returns a *TurnError.
func (s *Scheduler) Run(ctx context.Context, seed string) error {
	message := seed
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		output, err := s.Step(ctx, message)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		message = output
	}
}
