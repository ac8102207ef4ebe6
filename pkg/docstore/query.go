package docstore

import (
	"fmt"
	"strings"

	"github.com/surrealdb/entitygraph/pkg/constants"
)

// Term is one clause of a search query. An empty Field matches the free text.
type Term struct {
	Field string
	Value string
}

// SearchTerms is a parsed search query. All terms must match.
type SearchTerms struct {
	All   bool
	Terms []Term
}

// ParseSearch parses the subset of lucene syntax the search index accepts:
// whitespace separated `field:value` clauses, optionally quoted, and bare
// words matched against the free text. `*:*` matches everything.
func ParseSearch(q string) (SearchTerms, error) {
	q = strings.TrimSpace(q)
	if q == "" || q == "*:*" {
		return SearchTerms{All: true}, nil
	}

	var (
		out   SearchTerms
		buf   strings.Builder
		quote bool
	)
	var tokens []string
	for _, r := range q {
		switch {
		case r == '"':
			quote = !quote
			buf.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n') && !quote:
			if buf.Len() > 0 {
				tokens = append(tokens, buf.String())
				buf.Reset()
			}
		default:
			buf.WriteRune(r)
		}
	}
	if quote {
		return SearchTerms{}, fmt.Errorf("%w: unterminated quote in search query %q", constants.ErrValidation, q)
	}
	if buf.Len() > 0 {
		tokens = append(tokens, buf.String())
	}

	for _, tok := range tokens {
		if strings.EqualFold(tok, "AND") || tok == "*:*" {
			continue
		}
		field, val, ok := strings.Cut(tok, ":")
		if !ok || strings.HasPrefix(field, "\"") {
			out.Terms = append(out.Terms, Term{Value: strings.ToLower(strings.Trim(tok, "\""))})
			continue
		}
		out.Terms = append(out.Terms, Term{Field: field, Value: strings.Trim(val, "\"")})
	}
	return out, nil
}

// Matches reports whether the indexed fields satisfy every term. Field terms
// compare case-insensitively against the field's string form; a trailing `*`
// makes the value a prefix.
func (s SearchTerms) Matches(indexed map[string]any) bool {
	if indexed == nil {
		return false
	}
	for _, term := range s.Terms {
		if term.Field == "" {
			text, _ := indexed["default"].(string)
			if !strings.Contains(text, term.Value) {
				return false
			}
			continue
		}
		got, ok := indexed[term.Field]
		if !ok {
			return false
		}
		if !matchTerm(fmt.Sprint(got), term.Value) {
			return false
		}
	}
	return true
}

func matchTerm(got, want string) bool {
	if prefix, ok := strings.CutSuffix(want, "*"); ok {
		return strings.HasPrefix(strings.ToLower(got), strings.ToLower(prefix))
	}
	return strings.EqualFold(got, want)
}

// ParseSort converts search sort strings like `-modifiedAt<string>` to sort
// fields.
func ParseSort(sort []string) []SortField {
	out := make([]SortField, 0, len(sort))
	for _, s := range sort {
		s = strings.TrimSpace(s)
		if i := strings.IndexByte(s, '<'); i >= 0 {
			s = s[:i]
		}
		desc := strings.HasPrefix(s, "-")
		s = strings.TrimLeft(s, "+-")
		if s != "" {
			out = append(out, SortField{Field: s, Desc: desc})
		}
	}
	return out
}
