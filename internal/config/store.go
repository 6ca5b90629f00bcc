package config

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// Store holds the live tunables. Readers get a coherent snapshot without
// locking; writers are serialized and persist to path after every change.
type Store struct {
	cur  atomic.Pointer[Tunables]
	mu   sync.Mutex
	path string
}

// NewStore returns a store seeded with t. An empty path disables saving.
func NewStore(t *Tunables, path string) *Store {
	if t == nil {
		t = Default()
	}
	s := &Store{path: path}
	c := *t
	s.cur.Store(&c)
	return s
}

// Tunables returns a copy of the current tunables.
func (s *Store) Tunables() Tunables {
	return *s.cur.Load()
}

// DisciplineParams implements discipline.ParamSource.
func (s *Store) DisciplineParams() discipline.Params {
	return s.cur.Load().DisciplineParams()
}

// DataUnits returns the configured sample units.
func (s *Store) DataUnits() emitter.Units {
	return s.cur.Load().DataUnits
}

// Get returns the canonical name and formatted value of a parameter.
func (s *Store) Get(name string) (string, string, error) {
	p, ok := Lookup(name)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return p.Name, p.Get(s.cur.Load()), nil
}

// Set validates and applies one parameter, then saves. It returns the
// canonical name and the value as now stored. A save failure is returned
// after the new value has already taken effect.
func (s *Store) Set(name, value string) (string, string, error) {
	p, ok := Lookup(name)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	if err := p.set(&next, value); err != nil {
		return p.Name, "", fmt.Errorf("%s: %w", p.Name, err)
	}
	if err := p.check(&next); err != nil {
		return p.Name, "", fmt.Errorf("%s: %w", p.Name, err)
	}
	if err := next.checkPairs(); err != nil {
		return p.Name, "", fmt.Errorf("%s: %w", p.Name, err)
	}
	s.cur.Store(&next)
	log.Printf("config: %s = %s", p.Name, p.Get(&next))

	if s.path != "" {
		if err := next.Save(s.path); err != nil {
			return p.Name, p.Get(&next), err
		}
	}
	return p.Name, p.Get(&next), nil
}

// Path returns the file the store saves to.
func (s *Store) Path() string {
	return s.path
}
