package config

import (
	"fmt"
	"sync/atomic"
)

// Live holds the current engine timeouts. Readers take a snapshot per
// operation; Reload swaps in a new value without blocking them.
type Live struct {
	v atomic.Pointer[Timeouts]
}

func NewLive(t Timeouts) *Live {
	l := &Live{}
	l.Store(t)
	return l
}

// Timeouts returns the current snapshot.
func (l *Live) Timeouts() Timeouts {
	return *l.v.Load()
}

func (l *Live) Store(t Timeouts) {
	l.v.Store(&t)
}

// Reload re-reads the config file and swaps in its timeouts. Invalid
// timeouts leave the current value in place.
func (l *Live) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if err := cfg.Timeouts.Validate(); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	l.Store(cfg.Timeouts)
	return nil
}
