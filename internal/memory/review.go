package memory

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ReviewMention is one rule reference found in a review document,
// paired with the sentiment of the block that mentioned it.
type ReviewMention struct {
	RuleKey string
	Outcome string
}

var positiveCues = []string{"keep", "more of", "works", "worked", "helpful", "on point"}
var negativeCues = []string{"drop", "noise", "noisy", "stop", "useless", "annoying", "less of"}

// MineRuleKeys parses a markdown review and returns each known rule
// key mentioned, at most once, with a sentiment read from the
// surrounding block. Keys typically appear as code spans ("drop
// `growth_idle_new_leads`, pure noise") but plain text matches too.
func MineRuleKeys(source []byte, knownRules []string) []ReviewMention {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var mentions []ReviewMention
	seen := make(map[string]bool)

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
			block := strings.ToLower(string(n.Text(source)))
			for _, key := range knownRules {
				if seen[key] || !strings.Contains(block, key) {
					continue
				}
				seen[key] = true
				mentions = append(mentions, ReviewMention{RuleKey: key, Outcome: blockSentiment(block)})
			}
		}
		return ast.WalkContinue, nil
	})
	return mentions
}

// blockSentiment maps a review block to an outcome. Mixed or unmatched
// blocks read as neutral; only a clear signal moves a weight.
func blockSentiment(block string) string {
	positive := containsAny(block, positiveCues)
	negative := containsAny(block, negativeCues)
	switch {
	case positive && !negative:
		return OutcomeSuccess
	case negative && !positive:
		return OutcomeFailure
	}
	return OutcomeNeutral
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}
