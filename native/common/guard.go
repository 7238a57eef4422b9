package common

import (
	"errors"
	"sort"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when module is paused in p.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is an in-memory PauseView toggled by operators at runtime.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauses(initial ...string) *Pauses {
	p := &Pauses{paused: make(map[string]bool)}
	for _, module := range initial {
		if module != "" {
			p.paused[module] = true
		}
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// Set pauses or resumes module and reports whether the state changed.
func (p *Pauses) Set(module string, paused bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused[module] == paused {
		return false
	}
	if paused {
		p.paused[module] = true
	} else {
		delete(p.paused, module)
	}
	return true
}

// Paused lists the paused modules in lexical order.
func (p *Pauses) Paused() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.paused))
	for module := range p.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
