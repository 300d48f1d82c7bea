// Package visualizer renders a transition policy as a Mermaid state diagram,
// suitable for embedding in documentation or dashboards.
package visualizer

import (
	"fmt"
	"strings"

	"github.com/fsmkit/fsmkit/policy"
)

// GenerateMermaid renders the policy as a Mermaid stateDiagram-v2 rooted at
// the initial state, with default options.
func GenerateMermaid(p *policy.Policy, initial policy.State) string {
	return GenerateMermaidWithOptions(p, initial, Options{})
}

// GenerateMermaidWithOptions renders the policy with explicit rendering
// options. States and edges are emitted in sorted order so the output is
// stable across runs.
func GenerateMermaidWithOptions(p *policy.Policy, initial policy.State, opts Options) string {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")

	if opts.Direction != "" {
		fmt.Fprintf(&b, "    direction %s\n", opts.Direction)
	}

	if p == nil {
		return b.String()
	}

	highlighted := make(map[edge]struct{}, len(opts.HighlightPath))
	for i := 0; i+1 < len(opts.HighlightPath); i++ {
		highlighted[edge{opts.HighlightPath[i], opts.HighlightPath[i+1]}] = struct{}{}
	}

	if p.Contains(initial) {
		fmt.Fprintf(&b, "    [*] --> %s\n", initial)
	}

	for _, from := range p.States() {
		for _, to := range p.Destinations(from) {
			if _, ok := highlighted[edge{from, to}]; ok {
				fmt.Fprintf(&b, "    %s --> %s: <<highlight>>\n", from, to)
			} else {
				fmt.Fprintf(&b, "    %s --> %s\n", from, to)
			}
		}
	}

	if opts.MarkTerminals {
		for _, s := range p.TerminalStates() {
			fmt.Fprintf(&b, "    %s --> [*]\n", s)
		}
	}

	return b.String()
}

type edge struct {
	from, to policy.State
}
