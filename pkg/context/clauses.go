package context

import "github.com/abraxas-365/personal-ai-core/pkg/memory/model"

// Closed clause vocabulary for each personality lever. Every key here must
// correspond to one of the fixed constants in pkg/memory/model; an unknown
// value falls back to the neutral/omitted clause rather than erroring, since
// personality settings are user-editable free text in storage.

var styleClauses = map[string]string{
	model.StyleHelpful:      "Be helpful and solution-oriented.",
	model.StyleProfessional: "Maintain a professional, businesslike tone.",
	model.StyleFriendly:     "Be warm and friendly in tone.",
	model.StyleConcise:      "Keep responses concise and to the point.",
	model.StyleDetailed:     "Provide thorough, detailed responses.",
}

var formalityClauses = map[string]string{
	model.FormalityCasual:  "Use casual, conversational language.",
	model.FormalityNeutral: "Use neutral, balanced language.",
	model.FormalityFormal:  "Use formal language and address the user respectfully.",
}

var verbosityClauses = map[string]string{
	model.VerbosityMinimal:  "Keep responses brief.",
	model.VerbosityBalanced: "Balance brevity with completeness.",
	model.VerbosityDetailed: "Favor complete, detailed explanations.",
}

var empathyClauses = map[string]string{
	model.LevelMinimal: "Acknowledge the user's feelings briefly when relevant.",
	model.LevelLight:   "Show light empathy when the user expresses emotion.",
	model.LevelMedium:  "Respond with genuine empathy and emotional awareness.",
	model.LevelHigh:    "Prioritize emotional support and validate the user's feelings.",
}

var humorClauses = map[string]string{
	model.LevelMinimal: "Humor is rare and understated.",
	model.LevelLight:   "A light touch of humor is welcome where appropriate.",
	model.LevelMedium:  "Feel free to be playful and use humor when it fits.",
	model.LevelHigh:    "Be witty and humorous whenever it fits naturally.",
}

var creativityClauses = map[string]string{
	model.LevelMinimal: "Favor conventional, predictable answers.",
	model.LevelLight:   "Allow modest creative framing in answers.",
	model.LevelMedium:  "Feel free to use creative framing and examples.",
	model.LevelHigh:    "Favor imaginative, creative approaches to answers.",
}

// personalityClauses returns, in deterministic order, the non-empty
// clauses for p. Empathy/humor/creativity levels of "none" (or any level
// not in the map) are omitted entirely.
func personalityClauses(p model.PersonalitySettings) []string {
	var out []string
	if c, ok := styleClauses[p.Style]; ok {
		out = append(out, c)
	}
	if c, ok := formalityClauses[p.Formality]; ok {
		out = append(out, c)
	}
	if c, ok := verbosityClauses[p.Verbosity]; ok {
		out = append(out, c)
	}
	if p.Empathy != "" && p.Empathy != model.LevelNone {
		if c, ok := empathyClauses[p.Empathy]; ok {
			out = append(out, c)
		}
	}
	if p.Humor != "" && p.Humor != model.LevelNone {
		if c, ok := humorClauses[p.Humor]; ok {
			out = append(out, c)
		}
	}
	if p.Creativity != "" && p.Creativity != model.LevelNone {
		if c, ok := creativityClauses[p.Creativity]; ok {
			out = append(out, c)
		}
	}
	return out
}
