package match

import (
	"strings"

	"github.com/ppiankov/rollcall/internal/model"
)

// IrishAliasBonus is the score given when a search name and a first name are
// spellings of the same Irish name
const IrishAliasBonus = 0.9

// Strategy names one way of comparing a search string to a player name
type Strategy string

const (
	StrategyNone           Strategy = ""
	StrategyFullName       Strategy = "full_name"
	StrategyFirstName      Strategy = "first_name"
	StrategyLastName       Strategy = "last_name"
	StrategyReversedName   Strategy = "reversed_name"
	StrategySplitFirstLast Strategy = "split_first_last"
	StrategySplitReversed  Strategy = "split_reversed"
	StrategyIrishAlias     Strategy = "irish_alias"
)

// Strategies lists every strategy in evaluation order. Ties keep the earlier strategy.
var Strategies = []Strategy{
	StrategyFullName,
	StrategyFirstName,
	StrategyLastName,
	StrategyReversedName,
	StrategySplitFirstLast,
	StrategySplitReversed,
	StrategyIrishAlias,
}

// Result is the best score across all strategies, tagged with the strategy that produced it
type Result struct {
	Score    float64
	Strategy Strategy
	Scores   map[Strategy]float64 // every strategy that applied
	Reason   model.MatchReason
}

type nameParts struct {
	search   string
	tokens   []string
	first    string
	firstTok string
	last     string
	full     string
	reversed string
}

func newNameParts(searchName, firstName, lastName string) nameParts {
	p := nameParts{
		search: Normalize(searchName),
		first:  Normalize(firstName),
		last:   Normalize(lastName),
	}
	p.tokens = strings.Fields(p.search)
	if ft := strings.Fields(p.first); len(ft) > 0 {
		p.firstTok = ft[0]
	}
	p.full = strings.TrimSpace(p.first + " " + p.last)
	p.reversed = strings.TrimSpace(p.last + " " + p.first)
	return p
}

// score evaluates a single strategy; ok is false when the strategy does not apply
func (p nameParts) score(s Strategy) (float64, bool) {
	switch s {
	case StrategyFullName:
		return LevenshteinSimilarity(p.search, p.full), p.full != ""
	case StrategyFirstName:
		return LevenshteinSimilarity(p.search, p.first), p.first != ""
	case StrategyLastName:
		return LevenshteinSimilarity(p.search, p.last), p.last != ""
	case StrategyReversedName:
		return LevenshteinSimilarity(p.search, p.reversed), p.first != "" && p.last != ""
	case StrategySplitFirstLast:
		if len(p.tokens) < 2 || p.first == "" || p.last == "" {
			return 0, false
		}
		rest := strings.Join(p.tokens[1:], " ")
		return (LevenshteinSimilarity(p.tokens[0], p.first) + LevenshteinSimilarity(rest, p.last)) / 2, true
	case StrategySplitReversed:
		if len(p.tokens) < 2 || p.first == "" || p.last == "" {
			return 0, false
		}
		rest := strings.Join(p.tokens[1:], " ")
		return (LevenshteinSimilarity(p.tokens[0], p.last) + LevenshteinSimilarity(rest, p.first)) / 2, true
	case StrategyIrishAlias:
		if len(p.tokens) == 0 || !SameIrishName(p.tokens[0], p.firstTok) {
			return 0, false
		}
		return IrishAliasBonus, true
	}
	return 0, false
}

// CalculateMatchScore scores searchName against a player's first and last name.
// Every strategy is tried and the maximum wins.
func CalculateMatchScore(searchName, firstName, lastName string) Result {
	p := newNameParts(searchName, firstName, lastName)
	res := Result{Scores: make(map[Strategy]float64, len(Strategies))}

	if p.search == "" {
		res.Reason = model.ReasonPartialMatch
		return res
	}

	for _, s := range Strategies {
		v, ok := p.score(s)
		if !ok {
			continue
		}
		res.Scores[s] = v
		if v > res.Score || res.Strategy == StrategyNone {
			res.Score = v
			res.Strategy = s
		}
	}

	res.Reason = p.reason(res)
	return res
}

// MatchScore is CalculateMatchScore without the strategy breakdown
func MatchScore(searchName, firstName, lastName string) float64 {
	return CalculateMatchScore(searchName, firstName, lastName).Score
}
