package sqlstmt

import (
	"strconv"
	"strings"

	"github.com/mevdschee/pgwire/pgerr"
)

// Statement is a preparsed SQL statement: a fragment list plus the
// caches needed to answer parameter questions in O(1)/O(log n) without
// rescanning the SQL text on every call.
type Statement struct {
	fragments []Fragment

	// positionalMax is the highest $N referenced, 0 if none. Positional
	// parameters occupy global indices [0, positionalMax).
	positionalMax int
	// positionalSeen[i] is true iff $(i+1) appears somewhere in fragments.
	positionalSeen []bool

	// namedOrder lists named parameters in first-appearance order;
	// named parameters occupy global indices [positionalMax, parameterCount).
	namedOrder []string
	namedIndex map[string]int

	extraCache []ExtraPair
	extraValid bool
}

// Parse lexes input into a Statement and returns the offset just past a
// consumed top-level ';', or len(input) if the statement runs to the
// end of input unterminated.
func Parse(input string) (*Statement, int, error) {
	frags, tail, err := parse(input)
	if err != nil {
		return nil, 0, err
	}
	s, err := newStatement(frags)
	if err != nil {
		return nil, 0, err
	}
	return s, tail, nil
}

func newStatement(frags []Fragment) (*Statement, error) {
	positionalMax, positionalSeen, namedOrder, namedIndex := buildCaches(frags)
	if positionalMax+len(namedOrder) > maxParameterOccurrences {
		return nil, pgerr.New(pgerr.ParseError, "parameter limit exceeded")
	}
	return &Statement{
		fragments:      frags,
		positionalMax:  positionalMax,
		positionalSeen: positionalSeen,
		namedOrder:     namedOrder,
		namedIndex:     namedIndex,
	}, nil
}

func buildCaches(frags []Fragment) (positionalMax int, positionalSeen []bool, namedOrder []string, namedIndex map[string]int) {
	namedSeen := make(map[string]bool)
	for _, f := range frags {
		switch f.Kind {
		case FragmentPositionalParam:
			if f.Ordinal > positionalMax {
				positionalMax = f.Ordinal
			}
		case FragmentNamedParam:
			if !namedSeen[f.Text] {
				namedSeen[f.Text] = true
				namedOrder = append(namedOrder, f.Text)
			}
		}
	}
	positionalSeen = make([]bool, positionalMax)
	for _, f := range frags {
		if f.Kind == FragmentPositionalParam {
			positionalSeen[f.Ordinal-1] = true
		}
	}
	namedIndex = make(map[string]int, len(namedOrder))
	for i, name := range namedOrder {
		namedIndex[name] = positionalMax + i
	}
	return
}

// ParameterCount is positional_parameter_count + named_parameter_count.
func (s *Statement) ParameterCount() int { return s.positionalMax + len(s.namedOrder) }

// PositionalParameterCount is the highest $N referenced, 0 if none.
func (s *Statement) PositionalParameterCount() int { return s.positionalMax }

// NamedParameterCount is the number of distinct :name references.
func (s *Statement) NamedParameterCount() int { return len(s.namedOrder) }

// HasParameter reports whether name is a named parameter of s.
func (s *Statement) HasParameter(name string) bool {
	_, ok := s.namedIndex[name]
	return ok
}

// ParameterIndex returns the global 0-based index of the named
// parameter, or ok=false if name is not a parameter of s.
func (s *Statement) ParameterIndex(name string) (index int, ok bool) {
	index, ok = s.namedIndex[name]
	return
}

// ParameterName returns the label at a global 0-based index: the
// decimal positional number for indices below PositionalParameterCount,
// the parameter name otherwise.
func (s *Statement) ParameterName(index int) (string, bool) {
	if index < 0 || index >= s.ParameterCount() {
		return "", false
	}
	if index < s.positionalMax {
		return strconv.Itoa(index + 1), true
	}
	return s.namedOrder[index-s.positionalMax], true
}

// IsParameterMissing reports whether positional slot i (0-based, i <
// PositionalParameterCount) was never referenced as $(i+1).
func (s *Statement) IsParameterMissing(i int) bool {
	if i < 0 || i >= s.positionalMax {
		return false
	}
	return !s.positionalSeen[i]
}

// HasMissingParameters reports whether any positional gap exists.
func (s *Statement) HasMissingParameters() bool {
	for _, seen := range s.positionalSeen {
		if !seen {
			return true
		}
	}
	return false
}

// Append concatenates other's fragments onto s and rebuilds the
// parameter caches. It offers the strong exception guarantee: s is
// left unchanged if the merge would exceed the parameter limit.
func (s *Statement) Append(other *Statement) error {
	merged := make([]Fragment, 0, len(s.fragments)+len(other.fragments))
	merged = append(merged, s.fragments...)
	merged = append(merged, other.fragments...)
	next, err := newStatement(merged)
	if err != nil {
		return err
	}
	*s = *next
	return nil
}

// ReplaceParameter removes every named_param fragment named name and
// splices other's fragments in its place, then rebuilds the parameter
// caches. It offers the strong exception guarantee: s is left
// unchanged if name is not a parameter of s, or if the splice would
// exceed the parameter limit.
func (s *Statement) ReplaceParameter(name string, other *Statement) error {
	if !s.HasParameter(name) {
		return pgerr.New(pgerr.InvalidArgument, "unknown parameter %q", name)
	}
	staged := make([]Fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		if f.Kind == FragmentNamedParam && f.Text == name {
			staged = append(staged, other.fragments...)
			continue
		}
		staged = append(staged, f)
	}
	next, err := newStatement(staged)
	if err != nil {
		return err
	}
	*s = *next
	return nil
}

// ToString renders s with comments and original parameter syntax
// (:name, $N) intact.
func (s *Statement) ToString() string {
	var b strings.Builder
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentText:
			b.WriteString(f.Text)
		case FragmentLineComment:
			b.WriteString("--")
			b.WriteString(f.Text)
			b.WriteByte('\n')
		case FragmentBlockComment:
			b.WriteString("/*")
			b.WriteString(f.Text)
			b.WriteString("*/")
		case FragmentNamedParam:
			b.WriteByte(':')
			b.WriteString(f.Text)
		case FragmentPositionalParam:
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(f.Ordinal))
		}
	}
	return b.String()
}

// ToQueryString renders s without comments, turning every :name into
// $K where K is name's global 1-based parameter position, stable
// across calls for the life of s.
func (s *Statement) ToQueryString() string {
	var b strings.Builder
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentText:
			b.WriteString(f.Text)
		case FragmentNamedParam:
			k := s.namedIndex[f.Text] + 1
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(k))
		case FragmentPositionalParam:
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(f.Ordinal))
		}
	}
	return b.String()
}

// Extra lazily computes the extra-data association list embedded in
// s's leading comment run; the result is cached until the next Append
// or ReplaceParameter.
func (s *Statement) Extra() ([]ExtraPair, error) {
	if s.extraValid {
		return s.extraCache, nil
	}
	extra, err := extractExtra(s.fragments)
	if err != nil {
		return nil, err
	}
	s.extraCache = extra
	s.extraValid = true
	return extra, nil
}

// Fragments returns the underlying fragment list. Callers must treat
// it as read-only; use Append/ReplaceParameter to modify a Statement.
func (s *Statement) Fragments() []Fragment { return s.fragments }
