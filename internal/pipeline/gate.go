package pipeline

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/util"
)

// Gate decides which links are worth fetching and which pages are worth keeping
type Gate struct {
	blocked  []string
	robots   *util.RobotsChecker
	minChars int
}

// NewGate creates a gate. A nil robots checker skips robots.txt.
func NewGate(blocked []string, robots *util.RobotsChecker, minChars int) *Gate {
	return &Gate{blocked: blocked, robots: robots, minChars: minChars}
}

// CheckURL runs the pre-fetch checks. It returns a rejection, or the
// host's robots.txt crawl delay when the link may be fetched.
func (g *Gate) CheckURL(ctx context.Context, link *model.DiscoveredLink) (*model.QualityRejection, time.Duration) {
	host := util.Hostname(link.URL)
	if util.HostMatches(host, g.blocked) {
		return &model.QualityRejection{LinkID: link.ID, Reason: model.ReasonBlockedDomain}, 0
	}

	if g.robots == nil {
		return nil, 0
	}
	allowed, delay, err := g.robots.CanFetch(ctx, link.URL)
	if err == nil && !allowed {
		return &model.QualityRejection{LinkID: link.ID, Reason: model.ReasonRobotsDisallowed}, 0
	}
	return nil, delay
}

// CheckContent rejects thin pages. It always returns the word count.
func (g *Gate) CheckContent(linkID, content string) (int, *model.QualityRejection) {
	words := util.WordCount(content)
	length := utf8.RuneCountInString(content)
	if length < g.minChars {
		return words, &model.QualityRejection{
			LinkID:    linkID,
			Reason:    model.ReasonContentTooShort,
			WordCount: words,
			Length:    length,
		}
	}
	return words, nil
}
