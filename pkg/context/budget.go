// Package context assembles the {system_prompt, messages[]} pair the LLM
// router consumes, budgeting available tokens across whichever memory,
// document, web, and history sources are present.
//
// The assembler is pure CPU — it never blocks on I/O — so unlike the rest
// of this module it takes no context.Context.
package context

// Budget configures token budgeting and the combined-mode partition
// ratios.
type Budget struct {
	ReservedSystemPromptTokens int
	ReservedUserMessageTokens  int
	ReservedResponseTokens     int
	// ContextRatio scales whatever remains after reservations down to the
	// portion actually offered to context content.
	ContextRatio float64

	// Combined-mode partition ratios, renormalized over whichever sources
	// are actually present.
	MemoryRatio   float64
	DocumentRatio float64
	WebRatio      float64
	HistoryRatio  float64
}

// DefaultBudget returns the stock reservations and partition ratios.
func DefaultBudget() Budget {
	return Budget{
		ReservedSystemPromptTokens: 200,
		ReservedUserMessageTokens:  200,
		ReservedResponseTokens:     500,
		ContextRatio:               0.75,
		MemoryRatio:                0.3,
		DocumentRatio:              0.3,
		WebRatio:                   0.2,
		HistoryRatio:               0.2,
	}
}

// availableForContext computes the total token budget context content may
// occupy.
func (b Budget) availableForContext(modelMaxTokens int) int {
	base := modelMaxTokens - b.ReservedSystemPromptTokens - b.ReservedUserMessageTokens - b.ReservedResponseTokens
	if base < 0 {
		base = 0
	}
	scaled := float64(base) * b.ContextRatio
	if scaled < 0 {
		scaled = 0
	}
	return int(scaled)
}

// partition splits total among the sources flagged present, using this
// Budget's ratios renormalized over the present subset.
func (b Budget) partition(total int, memory, document, web, history bool) map[string]int {
	ratios := map[string]float64{}
	if memory {
		ratios["memory"] = b.MemoryRatio
	}
	if document {
		ratios["document"] = b.DocumentRatio
	}
	if web {
		ratios["web"] = b.WebRatio
	}
	if history {
		ratios["history"] = b.HistoryRatio
	}

	var sum float64
	for _, r := range ratios {
		sum += r
	}
	out := make(map[string]int, len(ratios))
	if sum <= 0 {
		return out
	}
	for k, r := range ratios {
		out[k] = int(float64(total) * (r / sum))
	}
	return out
}
