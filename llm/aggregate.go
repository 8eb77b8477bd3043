package llm

import (
	"fmt"
	"strings"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

// aggregateFailure builds a single error summarizing every failed
// candidate in a race/progressive batch, used when none succeed.
func aggregateFailure(failures []ProgressiveResult) error {
	if len(failures) == 0 {
		return types.NewError(types.ErrInternalError, "no candidates attempted")
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		msg := "unknown error"
		if f.Err != nil {
			msg = f.Err.Error()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.LLM, msg))
	}
	return types.NewError(types.ErrUpstreamError, fmt.Sprintf("all candidates failed: %s", strings.Join(parts, "; ")))
}
