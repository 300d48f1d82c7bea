package policy

import (
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative form of a transition table, suitable for
// YAML files checked in next to the owning service.
//
// Example:
//
//	name: order
//	states:
//	  - name: created
//	    to: [paid, cancelled]
//	  - name: paid
//	    to: [shipped, cancelled]
//	  - name: shipped
//	    to: [delivered]
//	  - name: delivered
//	  - name: cancelled
type Definition struct {
	Name   string            `json:"name"   yaml:"name"`
	States []StateDefinition `json:"states" yaml:"states"`
}

// StateDefinition declares one state and its allowed destinations.
// An absent or empty "to" list marks the state terminal.
type StateDefinition struct {
	Name string   `json:"name" yaml:"name"`
	To   []string `json:"to"   yaml:"to"`
}

// Load reads a policy definition from a YAML file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	return FromBytes(data)
}

// LoadFS reads a policy definition from an fs.FS, typically an embed.FS.
func LoadFS(fsys fs.FS, path string) (*Policy, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy from FS: %w", err)
	}

	return FromBytes(data)
}

// FromBytes parses a YAML policy definition and builds the policy.
func FromBytes(data []byte) (*Policy, error) {
	var def Definition

	err := yaml.Unmarshal(data, &def)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return def.Build()
}

// Build converts the definition into a validated Policy.
func (d *Definition) Build() (*Policy, error) {
	if d.Name == "" {
		return nil, ErrDefinitionNameRequired
	}

	builder := NewBuilder()

	for _, state := range d.States {
		destinations := make([]State, 0, len(state.To))
		for _, to := range state.To {
			destinations = append(destinations, State(to))
		}

		builder.AddState(State(state.Name), destinations...)
	}

	p, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", d.Name, err)
	}

	return p, nil
}
