package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/roach88/payconfirm/internal/confirm"
)

// ProbeStep is one scripted answer. Repeat > 1 plays it that many times.
type ProbeStep struct {
	Confirmed bool   `yaml:"confirmed"`
	Target    string `yaml:"target,omitempty"`
	Ref       string `yaml:"ref,omitempty"`
	Error     string `yaml:"error,omitempty"`
	Repeat    int    `yaml:"repeat,omitempty"`
}

// ScriptedProber answers probes from a script in call order. Once the
// script is exhausted every call answers "not confirmed".
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedProber struct {
	mu    sync.Mutex
	steps []ProbeStep
	calls []string
	block chan struct{}
}

// NewScriptedProber expands the Repeat counts of steps into a flat script.
func NewScriptedProber(steps ...ProbeStep) *ScriptedProber {
	var flat []ProbeStep
	for _, s := range steps {
		n := s.Repeat
		if n < 1 {
			n = 1
		}
		s.Repeat = 0
		for i := 0; i < n; i++ {
			flat = append(flat, s)
		}
	}
	return &ScriptedProber{steps: flat}
}

// Block makes subsequent probes wait until Unblock or context cancellation.
func (p *ScriptedProber) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.block == nil {
		p.block = make(chan struct{})
	}
}

// Unblock releases every waiting probe.
func (p *ScriptedProber) Unblock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.block != nil {
		close(p.block)
		p.block = nil
	}
}

// Probe implements probe.Prober.
func (p *ScriptedProber) Probe(ctx context.Context, identifier string) (confirm.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, identifier)
	var step ProbeStep
	if len(p.steps) > 0 {
		step = p.steps[0]
		p.steps = p.steps[1:]
	}
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return confirm.Result{}, ctx.Err()
		}
	}

	if step.Error != "" {
		return confirm.Result{}, errors.New(step.Error)
	}
	res := confirm.Result{Confirmed: step.Confirmed, Target: step.Target}
	if step.Ref != "" {
		res.ForObjectRef = json.RawMessage(step.Ref)
	}
	return res, nil
}

// Calls returns how many probes have been made.
func (p *ScriptedProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Identifiers returns the identifier of every probe in call order.
func (p *ScriptedProber) Identifiers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}
