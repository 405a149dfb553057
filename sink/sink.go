package sink

import (
	"errors"
)

// Speaker identifies who produced a fragment. Tag is a display annotation such as a colour label.
type Speaker struct {
	Name string
	Tag  string
}

// TokenSink receives streamed fragments in arrival order.
// Emit must not buffer or reorder; a returned error is reported by the caller and otherwise ignored.
type TokenSink interface {
	Emit(speaker Speaker, fragment string) error
}

// TurnSink is implemented by sinks that want to frame each turn,
// for example to print the speaker's name before the first fragment.
type TurnSink interface {
	BeginTurn(speaker Speaker, turn int)
	EndTurn(speaker Speaker, turn int)
}

// Func adapts a plain function to a TokenSink.
type Func func(speaker Speaker, fragment string) error

func (f Func) Emit(speaker Speaker, fragment string) error {
	return f(speaker, fragment)
}

// Discard drops every fragment.
var Discard TokenSink = Func(func(Speaker, string) error { return nil })

type multi struct {
	sinks []TokenSink
}

// Multi fans every fragment out to all sinks. A failing sink does not stop the others.
func Multi(sinks ...TokenSink) TokenSink {
	return &multi{sinks: sinks}
}

func (m *multi) Emit(speaker Speaker, fragment string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(speaker, fragment); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multi) BeginTurn(speaker Speaker, turn int) {
	for _, s := range m.sinks {
		if ts, ok := s.(TurnSink); ok {
			ts.BeginTurn(speaker, turn)
		}
	}
}

func (m *multi) EndTurn(speaker Speaker, turn int) {
	for _, s := range m.sinks {
		if ts, ok := s.(TurnSink); ok {
			ts.EndTurn(speaker, turn)
		}
	}
}
