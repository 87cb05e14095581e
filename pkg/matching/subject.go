// Package matching holds the fuzzy subject comparison shared by live-moment
// snapshots and buyer-copy disambiguation.
//
// The match is deliberately loose. Two names match when, after
// normalisation, either one contains the other. Known false positives are
// accepted: "Ohtan" matches "Shohei Ohtani", and a bare surname matches every
// player who shares it. Spelling variants do not match ("Otani" vs "Ohtani").
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize folds case and width and collapses whitespace runs.
func Normalize(name string) string {
	folded := folder.String(norm.NFKC.String(name))
	return strings.Join(strings.FieldsFunc(folded, unicode.IsSpace), " ")
}

// SubjectMatches reports whether two subject names refer to the same subject.
// Blank names never match anything.
func SubjectMatches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
