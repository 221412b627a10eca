// Package stage defines the Stage collaborator contract and a name-keyed
// registry (spec §6 Stage, §9 "Polymorphic stages": "a registry mapping
// stageName -> Stage capability"). The core never knows what a stage
// computes; it only invokes Execute and reacts to the envelope it returns.
package stage

import (
	"context"
	"fmt"
	"sort"

	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Stage is implemented once per registered pipeline stage (research,
// script-gen, tts, visual-gen, render, thumbnails, upload, ...). Bodies are
// expected to internally compose retryx and fallbackx themselves; the
// executor does not do this on their behalf (spec §4.4 step 3).
type Stage interface {
	Name() string
	Execute(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error)
}

// Registry is an ordered, name-keyed set of stages. Order is the fixed
// pipeline sequence the runner walks (spec §4.6).
type Registry struct {
	order  []string
	stages map[string]Stage
}

// NewRegistry builds a registry from stages in the order given; order is the
// sequence the pipeline runner will execute them in.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{stages: make(map[string]Stage, len(stages))}
	for _, s := range stages {
		name := s.Name()
		if name == "" {
			return nil, fmt.Errorf("stage: registered stage has empty name")
		}
		if _, exists := r.stages[name]; exists {
			return nil, fmt.Errorf("stage: duplicate stage name %q", name)
		}
		r.stages[name] = s
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the stage registered under name.
func (r *Registry) Get(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the registered stage names in pipeline order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// IndexOf returns the position of name in the fixed order, or -1.
func (r *Registry) IndexOf(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

// From returns the stage names from (and including) name to the end of the
// order, used to compute which stage slots to reset on a from-stage resume
// (spec §4.6 "marks stages ≥ X as pending").
func (r *Registry) From(name string) []string {
	idx := r.IndexOf(name)
	if idx < 0 {
		return nil
	}
	return append([]string(nil), r.order[idx:]...)
}

// sortedNames returns a stable, alphabetic view of registered names
// (diagnostics, not pipeline order); nothing in the package calls it.
func (r *Registry) sortedNames() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
