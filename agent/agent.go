// Package agent defines the external boundary between the LLM
// orchestration core and the diagram-producing agents built on top of
// it. The core has no knowledge of individual agents; it only exposes
// the LLMCore contract (llm.Core) they call into (§4.9).
package agent

import "context"

// GenerateResult is the outcome of GenerateGraph.
type GenerateResult struct {
	Success     bool
	Spec        string // JSON-encoded diagram spec, empty on failure
	DiagramType string
	Error       string
}

// Agent is a polymorphic producer of diagram specs. Internals are out
// of scope; this is the capability surface the orchestration layer
// drives.
type Agent interface {
	// GenerateGraph produces a new diagram spec from a user prompt.
	GenerateGraph(ctx context.Context, prompt, language string, params map[string]any) (GenerateResult, error)

	// EnhanceSpec takes an existing spec and returns an improved one.
	EnhanceSpec(ctx context.Context, spec string) (string, error)
}
