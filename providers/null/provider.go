// Package null implements an in-memory provider useful for wiring tests and
// for resources that exist only to carry triggers and dependencies.
package null

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stackform-io/stackform/internal/provider"
)

func init() {
	provider.RegisterFactory("null", func() provider.Interface { return New() })
}

type Provider struct {
	mu      sync.Mutex
	objects map[string]State
}

func New() *Provider {
	return &Provider{objects: make(map[string]State)}
}

type Config struct {
	Triggers map[string]string `json:"triggers"`
}

type State struct {
	ID       string            `json:"id"`
	Triggers map[string]string `json:"triggers"`
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired Config
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	st := State{
		ID:       fmt.Sprintf("null-%s", req.Name),
		Triggers: desired.Triggers,
	}
	p.mu.Lock()
	p.objects[st.ID] = st
	p.mu.Unlock()

	raw, _ := json.Marshal(st)
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	p.mu.Lock()
	st, ok := p.objects[req.ID]
	p.mu.Unlock()
	if !ok {
		return &provider.ReadResponse{Exists: false}, nil
	}
	raw, _ := json.Marshal(st)
	return &provider.ReadResponse{Exists: true, State: raw}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	delete(p.objects, req.ID)
	p.mu.Unlock()
	return nil
}
