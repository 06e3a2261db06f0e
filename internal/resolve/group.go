package resolve

import (
	"github.com/ppiankov/rollcall/internal/alias"
	"github.com/ppiankov/rollcall/internal/model"
)

type located struct {
	claimID string
	index   int
	mention model.EntityMention
}

// mentionGroup is every player mention sharing one lookup key
type mentionGroup struct {
	key      string
	search   string // raw text of the first mention, used for candidate search
	mentions []located
}

// groupMentions splits player mentions into groups by normalized raw text, in
// first-seen order, and returns all other mentions individually
func groupMentions(claims []model.Claim) ([]mentionGroup, []located) {
	var groups []mentionGroup
	byKey := make(map[string]int)
	var others []located

	for _, c := range claims {
		for i, m := range c.EntityMentions {
			loc := located{claimID: c.ID, index: i, mention: m}
			if m.MentionType != model.MentionPlayerName {
				others = append(others, loc)
				continue
			}

			key := alias.Key(m.RawText)
			idx, ok := byKey[key]
			if !ok {
				idx = len(groups)
				byKey[key] = idx
				groups = append(groups, mentionGroup{key: key, search: m.RawText})
			}
			groups[idx].mentions = append(groups[idx].mentions, loc)
		}
	}
	return groups, others
}
