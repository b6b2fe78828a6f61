// Package pattern implements URI pattern matching for pipeline dispatch.
//
// Two pattern dialects are supported: servlet-style patterns ("/foo/*",
// "*.html", "/exact") and anchored regular expressions. Matchers are
// compiled once at configuration time and are immutable and safe for
// concurrent use afterwards.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies how a compiled matcher interprets its pattern.
type Kind int

const (
	// KindLiteral matches the URI exactly.
	KindLiteral Kind = iota
	// KindPrefix matches URIs starting with the pattern body ("/foo/*").
	KindPrefix
	// KindSuffix matches URIs ending with the pattern body ("*.html").
	KindSuffix
	// KindRegex matches the whole URI against a compiled regexp.
	KindRegex
)

// String returns the kind name used in logs and config errors.
func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindPrefix:
		return "prefix"
	case KindSuffix:
		return "suffix"
	case KindRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Matcher matches a request URI against a single configured pattern.
type Matcher interface {
	// Matches reports whether the URI matches. Any query string component
	// is stripped before matching. An empty URI never matches.
	Matches(uri string) bool

	// ExtractPath returns the servlet-path portion of the URI for this
	// pattern, or "" when the pattern cannot determine one.
	ExtractPath(uri string) string

	// Kind returns the matching strategy.
	Kind() Kind

	// Pattern returns the original textual pattern.
	Pattern() string
}

// Compile builds a servlet-style matcher. A leading "*" means suffix match,
// a trailing "*" means prefix match, anything else is an exact literal.
func Compile(pattern string) (Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern: empty pattern")
	}
	switch {
	case strings.HasPrefix(pattern, "*"):
		return &servletMatcher{kind: KindSuffix, pattern: pattern, body: pattern[1:]}, nil
	case strings.HasSuffix(pattern, "*"):
		return &servletMatcher{kind: KindPrefix, pattern: pattern, body: pattern[:len(pattern)-1]}, nil
	default:
		return &servletMatcher{kind: KindLiteral, pattern: pattern, body: pattern}, nil
	}
}

// CompileRegex builds a regex matcher. The expression is compiled once;
// invalid syntax is a configuration error. Matching is anchored: the whole
// URI must match, not just a substring. Anchoring wraps the expression in
// \A(?:...)\z rather than checking the span of the leftmost match, which
// would wrongly reject URIs where only a later alternative or a longer
// non-greedy match covers the full input.
func CompileRegex(expr string) (Matcher, error) {
	if expr == "" {
		return nil, fmt.Errorf("pattern: empty regex pattern")
	}
	re, err := regexp.Compile(`\A(?:` + expr + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("pattern: invalid regex %q: %w", expr, err)
	}
	return &regexMatcher{pattern: expr, re: re}, nil
}

// stripQuery drops a "?..." component before matching.
func stripQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i != -1 {
		return uri[:i]
	}
	return uri
}

type servletMatcher struct {
	kind    Kind
	pattern string
	body    string
}

func (m *servletMatcher) Matches(uri string) bool {
	if uri == "" {
		return false
	}
	uri = stripQuery(uri)
	switch m.kind {
	case KindSuffix:
		return strings.HasSuffix(uri, m.body)
	case KindPrefix:
		return strings.HasPrefix(uri, m.body)
	default:
		return uri == m.body
	}
}

func (m *servletMatcher) ExtractPath(uri string) string {
	switch m.kind {
	case KindPrefix:
		// Strip the trailing "*" and any trailing "/" so "/my/*" yields "/my".
		return strings.TrimSuffix(m.body, "/")
	case KindLiteral:
		return m.pattern
	default:
		// Suffix patterns carry no path information.
		return ""
	}
}

func (m *servletMatcher) Kind() Kind      { return m.kind }
func (m *servletMatcher) Pattern() string { return m.pattern }

type regexMatcher struct {
	pattern string         // the expression as configured
	re      *regexp.Regexp // anchored form, \A(?:pattern)\z
}

func (m *regexMatcher) Matches(uri string) bool {
	if uri == "" {
		return false
	}
	return m.re.MatchString(stripQuery(uri))
}

// ExtractPath returns the substring of the URI preceding the start of
// capture group 1, or "" if the pattern has no group or does not match.
// This approximates "path before wildcard" for parity with servlet-style
// extraction; it is best-effort for multi-group patterns.
func (m *regexMatcher) ExtractPath(uri string) string {
	uri = stripQuery(uri)
	if m.re.NumSubexp() == 0 {
		return ""
	}
	loc := m.re.FindStringSubmatchIndex(uri)
	if loc == nil || loc[2] < 0 {
		return ""
	}
	return uri[:loc[2]]
}

func (m *regexMatcher) Kind() Kind      { return KindRegex }
func (m *regexMatcher) Pattern() string { return m.pattern }
