package sqlstmt

import (
	"strconv"
	"strings"

	"github.com/mevdschee/pgwire/pgerr"
)

// maxParameterOccurrences bounds parameter references the same way
// PostgreSQL itself bounds bind parameters; exceeding it is a lex
// error rather than a silent truncation.
const maxParameterOccurrences = 65535

// parse runs the byte-level preparser described by spec.md §4.A over
// input and returns the fragment list together with the tail offset:
// the index just past a consumed top-level ';', or len(input) if none
// was found. It does not itself build the parameter caches; that is
// Statement's job, so append/replace can reuse this function on
// fragments coming from a different source string.
func parse(input string) ([]Fragment, int, error) {
	n := len(input)
	var frags []Fragment
	textStart := 0
	bracketDepth := 0
	occurrences := 0

	flush := func(end int) {
		if end > textStart {
			frags = append(frags, Fragment{Kind: FragmentText, Text: input[textStart:end]})
		}
	}

	i := 0
	for i < n {
		c := input[i]
		switch {
		case c == '\'':
			end, err := scanSingleQuoted(input, i)
			if err != nil {
				return nil, 0, err
			}
			i = end
		case c == '"':
			end, err := scanDoubleQuoted(input, i)
			if err != nil {
				return nil, 0, err
			}
			i = end
		case c == '[':
			bracketDepth++
			i++
		case c == ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
			i++
		case c == '$' && i+1 < n && isDigit(input[i+1]) && !(i > 0 && isIdentByte(input[i-1])):
			flush(i)
			j := i + 1
			for j < n && isDigit(input[j]) {
				j++
			}
			num, err := strconv.Atoi(input[i+1 : j])
			if err != nil || num < 1 || num >= 65536 {
				return nil, 0, pgerr.NewAt(pgerr.ParseError, i, "invalid positional parameter %q", input[i:j])
			}
			occurrences++
			if occurrences > maxParameterOccurrences {
				return nil, 0, pgerr.NewAt(pgerr.ParseError, i, "parameter limit exceeded")
			}
			frags = append(frags, Fragment{Kind: FragmentPositionalParam, Ordinal: num})
			i = j
			textStart = i
		case c == '$':
			var prev byte
			if i > 0 {
				prev = input[i-1]
			}
			if isIdentByte(prev) {
				i++
				break
			}
			j := i + 1
			for j < n && isDollarTagByte(input[j]) {
				j++
			}
			if j < n && input[j] == '$' {
				tag := input[i+1 : j]
				closeSeq := "$" + tag + "$"
				bodyStart := j + 1
				idx := strings.Index(input[bodyStart:], closeSeq)
				if idx < 0 {
					return nil, 0, pgerr.NewAt(pgerr.ParseError, i, "unterminated dollar-quoted literal %q", closeSeq)
				}
				i = bodyStart + idx + len(closeSeq)
			} else {
				i++
			}
		case c == ':':
			var prev byte
			if i > 0 {
				prev = input[i-1]
			}
			if prev != ':' && i+1 < n && isIdentByte(input[i+1]) {
				flush(i)
				j := i + 1
				for j < n && isIdentByte(input[j]) {
					j++
				}
				name := input[i+1 : j]
				if isAllDigits(name) {
					return nil, 0, pgerr.NewAt(pgerr.ParseError, i, "named parameter %q collides with a positional index", name)
				}
				occurrences++
				if occurrences > maxParameterOccurrences {
					return nil, 0, pgerr.NewAt(pgerr.ParseError, i, "parameter limit exceeded")
				}
				frags = append(frags, Fragment{Kind: FragmentNamedParam, Text: name})
				i = j
				textStart = i
			} else {
				i++
			}
		case c == '-' && i+1 < n && input[i+1] == '-':
			flush(i)
			j := i + 2
			for j < n && input[j] != '\n' {
				j++
			}
			payload := strings.TrimSuffix(input[i+2:j], "\r")
			frags = append(frags, Fragment{Kind: FragmentLineComment, Text: payload})
			if j < n {
				j++ // consume the newline itself
			}
			i = j
			textStart = i
		case c == '/' && i+1 < n && input[i+1] == '*':
			flush(i)
			depth := 1
			j := i + 2
			for j < n && depth > 0 {
				switch {
				case j+1 < n && input[j] == '/' && input[j+1] == '*':
					depth++
					j += 2
				case j+1 < n && input[j] == '*' && input[j+1] == '/':
					depth--
					j += 2
				default:
					j++
				}
			}
			if depth != 0 {
				return nil, 0, pgerr.NewAt(pgerr.ParseError, i, "unterminated block comment")
			}
			frags = append(frags, Fragment{Kind: FragmentBlockComment, Text: input[i+2 : j-2]})
			i = j
			textStart = i
		case c == ';' && bracketDepth == 0:
			flush(i)
			return frags, i + 1, nil
		default:
			i++
		}
	}
	flush(n)
	return frags, n, nil
}

func scanSingleQuoted(input string, start int) (int, error) {
	n := len(input)
	j := start + 1
	for j < n {
		if input[j] == '\'' {
			if j+1 < n && input[j+1] == '\'' {
				j += 2
				continue
			}
			return j + 1, nil
		}
		j++
	}
	return 0, pgerr.NewAt(pgerr.ParseError, start, "unterminated quoted literal")
}

func scanDoubleQuoted(input string, start int) (int, error) {
	n := len(input)
	j := start + 1
	for j < n {
		if input[j] == '"' {
			if j+1 < n && input[j+1] == '"' {
				j += 2
				continue
			}
			return j + 1, nil
		}
		j++
	}
	return 0, pgerr.NewAt(pgerr.ParseError, start, "unterminated quoted identifier")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || isDigit(b) || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDollarTagByte(b byte) bool {
	return b == '_' || b == '-' || isDigit(b) || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
