package model

import "strings"

// DeriveShortcuts classifies a two-outcome market's sides and populates the
// Yes/No/Up/Down convenience fields. The rules, in priority order:
//
//  1. Exact "yes"/"no" labels (case-insensitive).
//  2. Exact "up"/"down" labels (case-insensitive) — these also set Yes/No,
//     treating Up as the yes-like side.
//  3. A complementary "X" / "Not X" pair, detected by substring containment:
//     the negated label is no-like, the bare label yes-like.
//
// If no rule matches the fields stay nil. They are never guessed. Markets
// with other than exactly two outcomes are left untouched.
func (m *Market) DeriveShortcuts() {
	if len(m.Outcomes) != 2 {
		return
	}

	a := &m.Outcomes[0]
	b := &m.Outcomes[1]
	la := strings.ToLower(strings.TrimSpace(a.Label))
	lb := strings.ToLower(strings.TrimSpace(b.Label))

	switch {
	case la == "yes" && lb == "no":
		m.Yes, m.No = a, b
	case la == "no" && lb == "yes":
		m.Yes, m.No = b, a
	case la == "up" && lb == "down":
		m.Up, m.Down = a, b
		m.Yes, m.No = a, b
	case la == "down" && lb == "up":
		m.Up, m.Down = b, a
		m.Yes, m.No = b, a
	default:
		if neg, pos, ok := complementaryPair(la, lb, a, b); ok {
			m.Yes, m.No = pos, neg
		}
	}
}

// complementaryPair detects a "Not X"/"X" labelling. Containment is checked
// in both directions so outcome order does not matter.
func complementaryPair(la, lb string, a, b *Outcome) (neg, pos *Outcome, ok bool) {
	if negated(la, lb) {
		return a, b, true
	}
	if negated(lb, la) {
		return b, a, true
	}
	return nil, nil, false
}

// negated reports whether candidate reads as the negation of base, i.e.
// "not <base>" with the base label contained in the remainder.
func negated(candidate, base string) bool {
	if base == "" {
		return false
	}
	rest, found := strings.CutPrefix(candidate, "not ")
	if !found {
		return false
	}
	return strings.Contains(rest, base) || strings.Contains(base, rest)
}
