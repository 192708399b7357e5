// Package sqlstmt implements the PostgreSQL-flavored SQL preparser: a
// byte-level lexer that splits a SQL statement into a fragment list
// (text, comments, named and positional parameters) and a Statement
// type built on top of that list, mirroring the parse/render/bind
// split the teacher's postgres.go keeps between wire framing and
// message handling.
package sqlstmt

// FragmentKind identifies what a Fragment carries.
type FragmentKind int

const (
	// FragmentText is a run of literal SQL text, including quoted
	// literals, quoted identifiers and bracket subscripts, which the
	// lexer does not otherwise decompose.
	FragmentText FragmentKind = iota
	// FragmentLineComment is the payload between -- and end-of-line,
	// excluding the leading -- and trailing line break.
	FragmentLineComment
	// FragmentBlockComment is the payload between /* and */, excluding
	// the outermost delimiters; block comments may nest.
	FragmentBlockComment
	// FragmentNamedParam is a :name reference.
	FragmentNamedParam
	// FragmentPositionalParam is a $N reference.
	FragmentPositionalParam
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentText:
		return "text"
	case FragmentLineComment:
		return "line_comment"
	case FragmentBlockComment:
		return "block_comment"
	case FragmentNamedParam:
		return "named_param"
	case FragmentPositionalParam:
		return "positional_param"
	default:
		return "unknown"
	}
}

// Fragment is one element of a parsed statement's fragment list.
type Fragment struct {
	Kind FragmentKind
	// Text holds literal bytes for FragmentText/FragmentLineComment/
	// FragmentBlockComment, and the parameter name for FragmentNamedParam.
	Text string
	// Ordinal is the decimal position N for FragmentPositionalParam;
	// zero for every other kind.
	Ordinal int
}

func (f Fragment) isComment() bool {
	return f.Kind == FragmentLineComment || f.Kind == FragmentBlockComment
}

func (f Fragment) isParameter() bool {
	return f.Kind == FragmentNamedParam || f.Kind == FragmentPositionalParam
}
