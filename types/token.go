package types

// TokenUsage is token consumption for a single call. TotalTokens from
// the provider's own accounting is authoritative when present; Add
// recomputes it as a fallback for providers that only report prompt/
// completion counts separately.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates other into u in place.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	if other.TotalTokens > 0 {
		u.TotalTokens += other.TotalTokens
	} else {
		u.TotalTokens += other.InputTokens + other.OutputTokens
	}
}

// Normalize fills TotalTokens from InputTokens+OutputTokens when the
// provider didn't report a total directly.
func (u TokenUsage) Normalize() TokenUsage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}
