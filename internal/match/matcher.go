// Package match decides whether an ingested message is an order and which
// registered partner sent it.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// Outcome is the matcher's verdict for one message. A message from an
// unregistered sender is never an order, even when keywords hit.
type Outcome struct {
	IsOrder        bool
	Partner        *domain.Partner
	MatchedKeyword string
}

// Matcher applies sender-address resolution and locale-aware keyword rules.
type Matcher struct {
	strip *bluemonday.Policy
}

func NewMatcher() *Matcher {
	return &Matcher{strip: bluemonday.StrictPolicy()}
}

// Match resolves the sender against the partner list, then applies the
// tenant keyword configuration. Sender match takes precedence: keywords are
// only consulted for messages from a registered, active partner.
func (m *Matcher) Match(msg *domain.EmailMessage, partners []domain.Partner, keywords *domain.KeywordConfig) Outcome {
	partner := m.resolvePartner(msg.FromAddress, partners)
	if partner == nil {
		return Outcome{}
	}

	// Keywords globally disabled: every message from a known partner
	// address counts as an order.
	if keywords == nil || !keywords.Enabled {
		return Outcome{IsOrder: true, Partner: partner}
	}

	haystack := msg.Subject + "\n" + m.CleanBody(msg)
	for _, keyword := range keywords.KeywordList() {
		if matchKeyword(haystack, keyword) {
			return Outcome{IsOrder: true, Partner: partner, MatchedKeyword: keyword}
		}
	}

	return Outcome{Partner: partner}
}

// CleanBody returns the message text with HTML stripped, preferring the
// plain-text part when present.
func (m *Matcher) CleanBody(msg *domain.EmailMessage) string {
	if strings.TrimSpace(msg.TextBody) != "" {
		return msg.TextBody
	}
	return m.strip.Sanitize(msg.HTMLBody)
}

func (m *Matcher) resolvePartner(fromAddress string, partners []domain.Partner) *domain.Partner {
	sender := strings.ToLower(strings.TrimSpace(fromAddress))
	for i := range partners {
		if !partners[i].Active {
			continue
		}
		if strings.ToLower(strings.TrimSpace(partners[i].ContactEmail)) == sender {
			return &partners[i]
		}
	}
	return nil
}

// matchKeyword is locale-sensitive: logographic-script keywords match as
// plain substrings because word boundaries carry no meaning there; Latin
// keywords require whole-word boundaries so "order" never matches "border".
func matchKeyword(haystack, keyword string) bool {
	if keyword == "" {
		return false
	}
	if isLogographic(keyword) {
		return strings.Contains(haystack, keyword)
	}

	pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(haystack)
}

// isLogographic reports whether any rune of the keyword belongs to a script
// without word boundaries (CJK ideographs, kana, hangul).
func isLogographic(keyword string) bool {
	for _, r := range keyword {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hangul, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}
