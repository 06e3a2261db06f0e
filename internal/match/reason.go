package match

import "github.com/ppiankov/rollcall/internal/model"

const (
	reversedReasonFloor = 0.85
	fuzzyReasonFloor    = 0.7
)

// reason labels a result by checking rules in fixed priority order,
// falling through to partial_match. It reads the strategy that won instead
// of re-deriving similarity, so the label always agrees with the score.
// Irish aliases come first but only count when the spellings differ; an
// identical first name is exact_first_name even if it is in the alias table.
func (p nameParts) reason(r Result) model.MatchReason {
	exactFirst := len(p.tokens) > 0 && p.firstTok != "" && p.tokens[0] == p.firstTok

	switch {
	case r.hasStrategy(StrategyIrishAlias) && !exactFirst:
		if r.Strategy == StrategyIrishAlias {
			return model.ReasonIrishAlias
		}
		return model.ReasonIrishAliasFuzzy

	case exactFirst:
		return model.ReasonExactFirstName

	case p.last != "" && (p.search == p.last || containsToken(p.tokens, p.last)):
		return model.ReasonLastNameMatch

	case (r.Strategy == StrategyReversedName || r.Strategy == StrategySplitReversed) && r.Score >= reversedReasonFloor:
		return model.ReasonReversedName

	case (r.Strategy == StrategyFullName || r.Strategy == StrategySplitFirstLast) && r.Score >= fuzzyReasonFloor:
		return model.ReasonFuzzyFullName

	case r.Strategy == StrategyFirstName && r.Score >= fuzzyReasonFloor:
		return model.ReasonFuzzyFirstName
	}

	return model.ReasonPartialMatch
}

func (r Result) hasStrategy(s Strategy) bool {
	_, ok := r.Scores[s]
	return ok
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
