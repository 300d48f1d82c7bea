package visualizer

import "github.com/fsmkit/fsmkit/policy"

// Options controls diagram rendering.
type Options struct {
	// Direction is the Mermaid layout direction (LR, TB). Empty uses the
	// Mermaid default.
	Direction string

	// HighlightPath marks each consecutive pair of states as a highlighted
	// edge, for showing one concrete flow through the policy.
	HighlightPath []policy.State

	// MarkTerminals draws an end marker after every terminal state.
	MarkTerminals bool
}
