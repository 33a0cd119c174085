// Package expect matches patterns against accumulated channel buffers,
// blocking for more data as needed.
//
// Matching is always attempted against the buffer, never a live stream, so
// a match can span bytes received across multiple physical reads, and bytes
// that arrive after the needed prefix stay buffered for the next call.
package expect

import "regexp"

// Pattern is an immutable matcher, compiled once and reused across calls.
// Every pattern is anchored to the start of the buffer: only a match
// beginning at offset 0 counts. Patterns that tolerate arbitrary leading
// text encode that themselves (e.g. with a leading `(?s).*?`).
type Pattern struct {
	src   string
	re    *regexp.Regexp
	after *Pattern
}

// Compile builds a Pattern from a regular expression. Named capture groups
// become the keys of the resulting Match.
func Compile(expr string) (*Pattern, error) {
	re, err := regexp.Compile(`\A(?:` + expr + `)`)
	if err != nil {
		return nil, err
	}
	return &Pattern{src: expr, re: re}, nil
}

// MustCompile is Compile for package-level pattern constants.
func MustCompile(expr string) *Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p *Pattern) String() string { return p.src }

// AfterLeadingText returns a pattern that tolerates an arbitrary run of
// text (a previous command's trailing output) before p. The derived pattern
// is compiled at most once per Pattern; the core is single-threaded so no
// locking is needed.
func (p *Pattern) AfterLeadingText() *Pattern {
	if p.after == nil {
		p.after = MustCompile(`(?s).*?(?:` + p.src + `)`)
	}
	return p.after
}

// TryMatch attempts the pattern against the start of buf. Returns nil when
// the pattern does not match. It does not consume anything; the caller
// decides what to do with Match.Len bytes.
func (p *Pattern) TryMatch(buf []byte) *Match {
	loc := p.re.FindSubmatchIndex(buf)
	if loc == nil {
		return nil
	}
	m := &Match{length: loc[1], groups: make(map[string]string)}
	for i, name := range p.re.SubexpNames() {
		if name == "" || 2*i >= len(loc) || loc[2*i] < 0 {
			continue
		}
		m.groups[name] = string(buf[loc[2*i]:loc[2*i+1]])
	}
	return m
}

// Match is the result of a successful pattern match. A nil *Match is the
// "no match" sentinel; a non-nil Match with no groups means the pattern
// matched but defined no captures.
type Match struct {
	length int
	groups map[string]string
}

// Len is the number of buffer bytes the match covered (the consumed prefix).
func (m *Match) Len() int { return m.length }

// Group returns the text captured by a named group, or "" if the group did
// not participate in the match.
func (m *Match) Group(name string) string { return m.groups[name] }

// Has reports whether a named group participated in the match.
func (m *Match) Has(name string) bool {
	_, ok := m.groups[name]
	return ok
}
