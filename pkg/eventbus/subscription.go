package eventbus

import (
	"regexp"

	"github.com/google/uuid"
)

// Handle identifies an active subscription for Unsubscribe.
type Handle uuid.UUID

// SubscribeOptions selects the matching strategies of spec.md §4.9 (type
// index, pattern index, predicate index). Any of them may be set; an event
// matches when any criterion that is set matches it.
type SubscribeOptions struct {
	Handler func(*Event)

	// Types matches events whose Type is in this list.
	Types []string

	// Pattern is compiled as a regular expression and matched against
	// event.Type (spec.md's "compiled string patterns").
	Pattern string

	// Predicate, if set, is evaluated against every emitted event.
	Predicate func(*Event) bool

	// Priority controls dispatch order among matching subscribers for one
	// event; higher runs first.
	Priority int
}

type subscription struct {
	handle    Handle
	handler   func(*Event)
	types     map[string]struct{}
	pattern   *regexp.Regexp
	predicate func(*Event) bool
	priority  int
}

func newSubscription(opts SubscribeOptions) (*subscription, error) {
	sub := &subscription{
		handle:    Handle(uuid.New()),
		handler:   opts.Handler,
		predicate: opts.Predicate,
		priority:  opts.Priority,
	}
	if len(opts.Types) > 0 {
		sub.types = make(map[string]struct{}, len(opts.Types))
		for _, t := range opts.Types {
			sub.types[t] = struct{}{}
		}
	}
	if opts.Pattern != "" {
		re, err := regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, err
		}
		sub.pattern = re
	}
	return sub, nil
}

func (s *subscription) matches(ev *Event) bool {
	if s.types != nil {
		if _, ok := s.types[ev.Type]; ok {
			return true
		}
	}
	if s.pattern != nil && s.pattern.MatchString(ev.Type) {
		return true
	}
	if s.predicate != nil && s.predicate(ev) {
		return true
	}
	return false
}
