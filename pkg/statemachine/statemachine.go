package statemachine

import (
	"context"
	"fmt"
)

// Guard vetoes a transition when it returns false.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Action runs after the guards passed. An error aborts the transition.
type Action[S, E comparable, D any] func(ctx context.Context, from, to S, event E, data D) error

// Rule moves From to To on Event. Rules sharing (From, Event) are tried in
// declaration order and the first one whose guards all pass wins.
type Rule[S, E comparable, D any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, D]
	Actions []Action[S, E, D]
}

// Table is an immutable transition table. It holds no current state: callers
// pass the state they loaded and persist the one returned, so one Table
// serves any number of entities concurrently.
type Table[S, E comparable, D any] struct {
	rules map[S]map[E][]Rule[S, E, D]
	order map[S][]E
}

// New builds a table from rules. A rule declared after an unguarded rule for
// the same (From, Event) pair could never fire and is reported as
// ErrUnreachableRule.
func New[S, E comparable, D any](rules ...Rule[S, E, D]) (*Table[S, E, D], error) {
	t := &Table[S, E, D]{
		rules: make(map[S]map[E][]Rule[S, E, D]),
		order: make(map[S][]E),
	}

	for i, r := range rules {
		byEvent, ok := t.rules[r.From]
		if !ok {
			byEvent = make(map[E][]Rule[S, E, D])
			t.rules[r.From] = byEvent
		}

		prev := byEvent[r.Event]
		if len(prev) == 0 {
			t.order[r.From] = append(t.order[r.From], r.Event)
		} else if len(prev[len(prev)-1].Guards) == 0 {
			return nil, fmt.Errorf("%w: rule[%d] %v -> %v on %v", ErrUnreachableRule, i, r.From, r.To, r.Event)
		}
		byEvent[r.Event] = append(prev, r)
	}

	return t, nil
}

// MustNew is New for package-level tables; a bad definition panics at startup.
func MustNew[S, E comparable, D any](rules ...Rule[S, E, D]) *Table[S, E, D] {
	t, err := New(rules...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return t
}

// Fire applies event to from and returns the new state. On error the
// returned state is from.
func (t *Table[S, E, D]) Fire(ctx context.Context, from S, event E, data D) (S, error) {
	rule, err := t.match(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range rule.Actions {
		if err := action(ctx, from, rule.To, event, data); err != nil {
			return from, &TransitionError{From: fmt.Sprint(from), Event: fmt.Sprint(event), Err: err}
		}
	}
	return rule.To, nil
}

// CanFire reports whether event would be accepted in from.
// Guards are evaluated, actions are not.
func (t *Table[S, E, D]) CanFire(ctx context.Context, from S, event E, data D) bool {
	_, err := t.match(ctx, from, event, data)
	return err == nil
}

// Events lists the events declared for from in declaration order, guards aside.
func (t *Table[S, E, D]) Events(from S) []E {
	return append([]E(nil), t.order[from]...)
}

func (t *Table[S, E, D]) match(ctx context.Context, from S, event E, data D) (*Rule[S, E, D], error) {
	rules := t.rules[from][event]
	if len(rules) == 0 {
		return nil, &TransitionError{From: fmt.Sprint(from), Event: fmt.Sprint(event), Err: ErrNoTransition}
	}

	for i := range rules {
		if allow(ctx, rules[i].Guards, from, event, data) {
			return &rules[i], nil
		}
	}
	return nil, &TransitionError{From: fmt.Sprint(from), Event: fmt.Sprint(event), Err: ErrRejected}
}

func allow[S, E comparable, D any](ctx context.Context, guards []Guard[S, E, D], from S, event E, data D) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
