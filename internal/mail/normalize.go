package mail

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer folds names and subjects into canonical comparison form so
// reply chains and differently-quoted senders group identically in sorted
// views.
type Normalizer struct {
	// replyPrefixes are lower-cased localized Re/Fwd markers stripped from
	// subjects, without the trailing colon.
	replyPrefixes []string
}

// NewNormalizer creates a Normalizer with the given localized reply/forward
// prefixes (e.g. "re", "sv", "aw", "fwd").
func NewNormalizer(replyPrefixes []string) *Normalizer {
	prefixes := make([]string, 0, len(replyPrefixes))
	for _, p := range replyPrefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Normalizer{replyPrefixes: prefixes}
}

// NormalizeName folds a sender/recipient display name: diacritics removed,
// punctuation stripped, lower-cased, whitespace collapsed.
func (n *Normalizer) NormalizeName(s string) string {
	s = n.foldDiacritics(strings.TrimSpace(s))
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
		// Punctuation and symbols are dropped.
	}
	return strings.TrimRight(b.String(), " ")
}

// NormalizeSubject strips localized reply/forward prefixes repeatedly, folds
// diacritics and optionally lower-cases the result. Subject comparisons are
// case-insensitive throughout.
func (n *Normalizer) NormalizeSubject(s string, toLower bool) string {
	s = strings.TrimSpace(s)
	for {
		stripped := n.stripOnePrefix(s)
		if stripped == s {
			break
		}
		s = stripped
	}
	s = n.foldDiacritics(s)
	if toLower {
		s = strings.ToLower(s)
	}
	return s
}

func (n *Normalizer) stripOnePrefix(s string) string {
	lower := strings.ToLower(s)
	for _, p := range n.replyPrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		rest := s[len(p):]
		restTrim := strings.TrimLeft(rest, " ")
		if strings.HasPrefix(restTrim, ":") {
			return strings.TrimSpace(restTrim[1:])
		}
		// Bracketed counters, e.g. "Re[2]:".
		if strings.HasPrefix(restTrim, "[") {
			if end := strings.Index(restTrim, "]:"); end >= 0 {
				return strings.TrimSpace(restTrim[end+2:])
			}
		}
	}
	return s
}

func (n *Normalizer) foldDiacritics(s string) string {
	// Transformers carry state and are not safe for concurrent reuse, so the
	// chain is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, s)
	if err != nil {
		return s
	}
	return out
}
