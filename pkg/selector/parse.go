package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/surrealdb/entitygraph/pkg/models"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("selector syntax error")

type parseOptions struct {
	rewrite   bool
	allFields bool
}

// Option configures Parse.
type Option func(*parseOptions)

// FieldRewrite rewrites expressions rooted at a field slug, such as
// `gallery[0]:slice(0,1)`, to the canonical `fields.gallery.value[0]:slice(0,1)`.
// Expressions rooted at an entity attribute are left alone.
func FieldRewrite() Option {
	return func(o *parseOptions) {
		o.rewrite = true
	}
}

// FieldsOnly is FieldRewrite applied to every rooted expression, attribute
// names included. Title and slug templates use it.
func FieldsOnly() Option {
	return func(o *parseOptions) {
		o.rewrite = true
		o.allFields = true
	}
}

// Parse parses a selector.
func Parse(src string, opts ...Option) (*Selector, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	terms, err := splitTop(src, ',')
	if err != nil {
		return nil, err
	}

	sel := &Selector{Source: src}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		expr, err := parseExpr(term, o)
		if err != nil {
			return nil, err
		}
		sel.Exprs = append(sel.Exprs, expr)
	}
	if len(sel.Exprs) == 0 {
		return nil, fmt.Errorf("%w: empty selector", ErrSyntax)
	}
	return sel, nil
}

// MustParse is Parse that panics on error.
func MustParse(src string, opts ...Option) *Selector {
	sel, err := Parse(src, opts...)
	if err != nil {
		panic(err)
	}
	return sel
}

// ParseExpr parses a single expression.
func ParseExpr(src string, opts ...Option) (*Expr, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}
	return parseExpr(strings.TrimSpace(src), o)
}

func parseExpr(src string, o parseOptions) (*Expr, error) {
	parts, err := splitTop(src, ':')
	if err != nil {
		return nil, err
	}

	expr := &Expr{Source: src}
	head := strings.TrimSpace(parts[0])
	if call, ok, err := parseCall(head); err != nil {
		return nil, err
	} else if ok {
		expr.Calls = append(expr.Calls, call)
	} else if head != "" {
		if expr.Path, err = parsePath(head); err != nil {
			return nil, err
		}
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		call, ok, err := parseCall(part)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a modifier call in %q", ErrSyntax, part, src)
		}
		expr.Calls = append(expr.Calls, call)
	}

	if len(expr.Path) == 0 && len(expr.Calls) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	if o.rewrite {
		rewrite(expr, o.allFields)
	}
	return expr, nil
}

func rewrite(expr *Expr, all bool) {
	if len(expr.Path) == 0 || expr.Path[0].Kind != SegmentKey {
		return
	}
	root := expr.Path[0].Key
	if root == "fields" || (!all && models.IsEntityKey(root)) {
		return
	}
	path := make([]Segment, 0, len(expr.Path)+2)
	path = append(path,
		Segment{Kind: SegmentKey, Key: "fields"},
		Segment{Kind: SegmentKey, Key: root},
		Segment{Kind: SegmentKey, Key: "value"},
	)
	expr.Path = append(path, expr.Path[1:]...)
}

func parsePath(src string) ([]Segment, error) {
	var path []Segment
	i := 0
	for i < len(src) {
		switch c := src[i]; c {
		case '.':
			if i == 0 || i == len(src)-1 || src[i+1] == '.' {
				return nil, fmt.Errorf("%w: misplaced '.' at %d in %q", ErrSyntax, i, src)
			}
			i++
		case '[':
			end, err := closing(src, i)
			if err != nil {
				return nil, err
			}
			seg, err := parseBracket(strings.TrimSpace(src[i+1 : end]))
			if err != nil {
				return nil, fmt.Errorf("%w in %q", err, src)
			}
			path = append(path, seg)
			i = end + 1
		case ']', '(', ')', '"', '\'':
			return nil, fmt.Errorf("%w: unexpected %q at %d in %q", ErrSyntax, c, i, src)
		default:
			start := i
			for i < len(src) && src[i] != '.' && src[i] != '[' {
				if strings.IndexByte("]()\"'", src[i]) >= 0 {
					return nil, fmt.Errorf("%w: unexpected %q at %d in %q", ErrSyntax, src[i], i, src)
				}
				i++
			}
			key := strings.TrimSpace(src[start:i])
			if key == "" {
				return nil, fmt.Errorf("%w: empty key at %d in %q", ErrSyntax, start, src)
			}
			path = append(path, Segment{Kind: SegmentKey, Key: key})
		}
	}
	return path, nil
}

func parseBracket(inner string) (Segment, error) {
	switch {
	case inner == "*":
		return Segment{Kind: SegmentAll}, nil
	case isQuoted(inner):
		return Segment{Kind: SegmentKey, Key: inner[1 : len(inner)-1]}, nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: bad index %q", ErrSyntax, inner)
	}
	return Segment{Kind: SegmentIndex, Index: n}, nil
}

// parseCall recognises `name(args)`. It returns ok=false when src is not shaped
// like a call at all.
func parseCall(src string) (Call, bool, error) {
	open := strings.IndexByte(src, '(')
	if open <= 0 || !isIdent(src[:open]) {
		return Call{}, false, nil
	}
	end, err := closing(src, open)
	if err != nil {
		return Call{}, false, err
	}
	if end != len(src)-1 {
		return Call{}, false, fmt.Errorf("%w: trailing input after call in %q", ErrSyntax, src)
	}

	call := Call{Name: src[:open]}
	if inner := strings.TrimSpace(src[open+1 : end]); inner != "" {
		args, err := splitTop(inner, ',')
		if err != nil {
			return Call{}, false, err
		}
		for _, arg := range args {
			call.Args = append(call.Args, unquote(strings.TrimSpace(arg)))
		}
	}
	if err := bind(&call); err != nil {
		return Call{}, false, err
	}
	return call, true, nil
}

// splitTop splits src on sep, ignoring separators nested in brackets,
// parentheses or quotes.
func splitTop(src string, sep byte) ([]string, error) {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced %q at %d in %q", ErrSyntax, c, i, src)
			}
		case c == sep && depth == 0:
			parts = append(parts, src[start:i])
			start = i + 1
		}
	}
	if depth != 0 || quote != 0 {
		return nil, fmt.Errorf("%w: unterminated group in %q", ErrSyntax, src)
	}
	return append(parts, src[start:]), nil
}

// closing returns the index of the bracket closing the one at open.
func closing(src string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unclosed %q at %d in %q", ErrSyntax, src[open], open, src)
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}

func isQuoted(s string) bool {
	return len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0]
}

func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}
