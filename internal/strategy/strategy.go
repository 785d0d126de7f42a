// Package strategy provides signal generators for backtesting. Generators
// are pure: the same bar series always yields the same signal sequence.
package strategy

import (
	"fmt"
	"sort"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
)

// SignalGenerator turns a bar series into a signal sequence aligned to the
// same timestamps.
type SignalGenerator interface {
	Name() string
	Params() map[string]float64
	Generate(bars []models.Bar) []models.Signal
}

// Factory builds parameterized generators, enabling parameter sweeps
// without runtime code generation.
type Factory interface {
	Name() string
	Build(params map[string]float64) (SignalGenerator, error)
}

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the builtin strategies installed.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(smaCrossFactory{})
	r.Register(rsiReversionFactory{})
	r.Register(macdCrossFactory{})
	return r
}

// Register installs a factory.
func (r *Registry) Register(f Factory) {
	r.factories[f.Name()] = f
}

// Factory looks up a registered factory by name.
func (r *Registry) Factory(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownStrategy, "%q", name)
	}
	return f, nil
}

// Build constructs a generator by strategy name.
func (r *Registry) Build(name string, params map[string]float64) (SignalGenerator, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownStrategy, "%q", name)
	}
	return f.Build(params)
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func paramInt(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok {
		return int(v)
	}
	return def
}

func paramFloat(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func describe(name string, params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := name
	for _, k := range keys {
		s += fmt.Sprintf("_%s=%g", k, params[k])
	}
	return s
}
