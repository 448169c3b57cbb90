package fsm

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTransition reports a transition requested for a state that has
// no handler registered. This is a configuration error, never runtime noise.
var ErrUnknownTransition = errors.New("unknown transition")

// Result classifies how a machine run ended.
type Result int

const (
	// ResultDone means a handler returned Done: the terminal success path.
	ResultDone Result = iota
	// ResultParked means a handler returned Park: the machine stops without
	// error and without advancing; an external call resumes it later.
	ResultParked
	// ResultFailed means a handler returned Fail; the error is surfaced to
	// the owner and the machine stops advancing.
	ResultFailed
)

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeDone
	outcomePark
	outcomeFail
)

// Outcome is the tagged "next step" value a transition handler returns.
type Outcome struct {
	kind outcomeKind
	next string
	err  error
}

// Continue advances to the transition named next.
func Continue(next string) Outcome { return Outcome{kind: outcomeContinue, next: next} }

// Done terminates the run successfully.
func Done() Outcome { return Outcome{kind: outcomeDone} }

// Park stops the run without error; the current cursor is kept so a later
// Run resumes at the same transition.
func Park() Outcome { return Outcome{kind: outcomePark} }

// Fail stops the run with err.
func Fail(err error) Outcome { return Outcome{kind: outcomeFail, err: err} }

// Handler performs one transition's unit of work. It must finish before the
// machine looks at anything else; there is no concurrency within a machine.
type Handler func(ctx context.Context) Outcome

// Transition connects two states through a named handler.
type Transition struct {
	Name    string
	From    string
	To      string
	Handler Handler
}

type transitionKey struct {
	from string
	name string
}

// Machine executes transitions for a single entity, sequentially.
type Machine struct {
	byKey   map[transitionKey]Transition
	state   string
	pending string
}

// New builds a machine from the given transition table. Duplicate
// (from, name) pairs are rejected.
func New(transitions ...Transition) (*Machine, error) {
	byKey := make(map[transitionKey]Transition, len(transitions))
	for _, tr := range transitions {
		if tr.Name == "" || tr.From == "" || tr.To == "" {
			return nil, fmt.Errorf("transition %q: name, from and to are required", tr.Name)
		}
		if tr.Handler == nil {
			return nil, fmt.Errorf("transition %q: handler is required", tr.Name)
		}
		key := transitionKey{from: tr.From, name: tr.Name}
		if _, exists := byKey[key]; exists {
			return nil, fmt.Errorf("transition %q from state %q registered twice", tr.Name, tr.From)
		}
		byKey[key] = tr
	}
	return &Machine{byKey: byKey}, nil
}

// Init positions the execution cursor without running anything. It serves
// both brand-new entities (initial state and first transition) and resumed
// entities (the persisted checkpoint).
func (m *Machine) Init(state, transition string) {
	m.state = state
	m.pending = transition
}

// State returns the machine's current state.
func (m *Machine) State() string { return m.state }

// Run drives the machine from the cursor set by Init until a handler
// returns Done, Park, or Fail, or until no handler exists for the cursor.
//
// A ResultFailed error wraps the handler's failure; an ErrUnknownTransition
// is returned when the cursor names a transition the current state does not
// have.
func (m *Machine) Run(ctx context.Context) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ResultFailed, err
		}

		tr, ok := m.byKey[transitionKey{from: m.state, name: m.pending}]
		if !ok {
			return ResultFailed, fmt.Errorf("%w: %q from state %q", ErrUnknownTransition, m.pending, m.state)
		}

		outcome := tr.Handler(ctx)
		switch outcome.kind {
		case outcomeContinue:
			m.state = tr.To
			m.pending = outcome.next
		case outcomeDone:
			m.state = tr.To
			return ResultDone, nil
		case outcomePark:
			return ResultParked, nil
		case outcomeFail:
			err := outcome.err
			if err == nil {
				err = fmt.Errorf("transition %q failed without detail", tr.Name)
			}
			return ResultFailed, err
		default:
			return ResultFailed, fmt.Errorf("transition %q returned invalid outcome", tr.Name)
		}
	}
}
