package plugin

import (
	"context"
	"encoding/json"
	"fmt"
)

// Dispatcher resolves a plugin by name and runs one of its actions.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	return &Dispatcher{manager: manager, executor: executor}
}

// Dispatch runs action on the named plugin for a recognized sign.
func (d *Dispatcher) Dispatch(ctx context.Context, pluginName, action string, config json.RawMessage, sign string, confidence float64) (*Response, error) {
	p, err := d.manager.Get(pluginName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pluginName, err)
	}
	if !p.Supports(action) {
		return nil, fmt.Errorf("%s/%s: %w", pluginName, action, ErrActionNotSupported)
	}
	return d.executor.Execute(ctx, p, &Request{
		Action:     action,
		Sign:       sign,
		Confidence: confidence,
		Config:     config,
	})
}
