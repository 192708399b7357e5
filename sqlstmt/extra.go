package sqlstmt

import (
	"strings"

	"github.com/mevdschee/pgwire/pgerr"
)

// ExtraPair is one (tag, cleaned_body) association mined from a
// dollar-quoted literal inside a statement's leading comment run.
type ExtraPair struct {
	Tag  string
	Body string
}

func isBlankText(s string) bool { return strings.TrimSpace(s) == "" }

// leadingNewlines counts '\n' bytes in s.
func leadingNewlines(s string) int { return strings.Count(s, "\n") }

// relatedComments finds the contiguous comment run immediately
// preceding the first significant fragment: the first non-blank text
// fragment whose leading whitespace holds at most one '\n', or the
// first parameter fragment if that comes first. Per spec.md §4.A step
// 2, the walk back over comments also tolerates blank text fragments
// whose whitespace holds at most one '\n'.
func relatedComments(frags []Fragment) []Fragment {
	sigIndex := -1
	for i, f := range frags {
		if f.isParameter() {
			sigIndex = i
			break
		}
		if f.Kind == FragmentText {
			if isBlankText(f.Text) {
				continue
			}
			if leadingWhitespaceNewlines(f.Text) <= 1 {
				sigIndex = i
				break
			}
		}
	}
	if sigIndex <= 0 {
		return nil
	}
	// Fragment at sigIndex is a non-blank text fragment (parameter
	// fragments have no related comments per the original: only a
	// leading non-blank text fragment anchors a comment run).
	if frags[sigIndex].Kind != FragmentText {
		return nil
	}
	start := sigIndex
	for start > 0 {
		prev := frags[start-1]
		if prev.isComment() {
			start--
			continue
		}
		if prev.Kind == FragmentText && isBlankText(prev.Text) && leadingNewlines(prev.Text) <= 1 {
			start--
			continue
		}
		break
	}
	if start == sigIndex {
		return nil
	}
	var run []Fragment
	for _, f := range frags[start:sigIndex] {
		if f.isComment() {
			run = append(run, f)
		}
	}
	return run
}

func leadingWhitespaceNewlines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		} else if r == ' ' || r == '\t' || r == '\r' {
			continue
		} else {
			break
		}
	}
	return n
}

// commentGroup is one maximal same-kind run of joined comment text.
type commentGroup struct {
	text string
	kind FragmentKind
}

// joinedComments groups related comments into maximal same-kind runs
// and concatenates each run; line-comment runs re-insert '\n' between
// items since the lexer strips it from each fragment's payload.
func joinedComments(run []Fragment) []commentGroup {
	var groups []commentGroup
	for _, f := range run {
		if len(groups) > 0 && groups[len(groups)-1].kind == f.Kind {
			last := &groups[len(groups)-1]
			if f.Kind == FragmentLineComment {
				last.text += "\n" + f.Text
			} else {
				last.text += f.Text
			}
			continue
		}
		groups = append(groups, commentGroup{text: f.Text, kind: f.Kind})
	}
	return groups
}

// extractExtra runs spec.md §4.A's extra-data extraction over a
// statement's fragment list, grounded on dmitigr::pgfe::sql_string.cpp's
// Extra::extract/indent_size/cleaned_content.
func extractExtra(frags []Fragment) ([]ExtraPair, error) {
	run := relatedComments(frags)
	if run == nil {
		return nil, nil
	}
	var result []ExtraPair
	for _, g := range joinedComments(run) {
		pairs, err := extractDollarQuotes(g.text)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			result = append(result, ExtraPair{Tag: p.Tag, Body: cleanedContent(p.Body, g.kind == FragmentBlockComment)})
		}
	}
	return result, nil
}

type rawExtra struct{ Tag, Body string }

// extractDollarQuotes scans a concatenated comment body for $tag$...$tag$
// pairs, following the same leading-$ and tag-character rules as the
// main lexer's dollar-quote handling.
func extractDollarQuotes(input string) ([]rawExtra, error) {
	const (
		top = iota
		dollar
		leadingTag
		body
		bodyDollar
	)
	state := top
	var result []rawExtra
	var content strings.Builder
	var leadTag, trailTag strings.Builder

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch state {
		case top:
			if c == '$' && !(i > 0 && isIdentByte(input[i-1])) {
				state = dollar
			}
		case dollar:
			if isDollarTagByte(c) {
				state = leadingTag
				leadTag.WriteByte(c)
			} else if c == '$' {
				// empty tag
				state = body
			} else {
				state = top
			}
		case leadingTag:
			if c == '$' {
				state = body
			} else if isDollarTagByte(c) {
				leadTag.WriteByte(c)
			} else {
				return nil, pgerr.New(pgerr.ParseError, "invalid dollar quote tag in comment")
			}
		case body:
			if c == '$' {
				state = bodyDollar
			} else {
				content.WriteByte(c)
			}
		case bodyDollar:
			if c == '$' {
				if leadTag.String() == trailTag.String() {
					result = append(result, rawExtra{Tag: leadTag.String(), Body: content.String()})
					content.Reset()
					leadTag.Reset()
					state = top
				} else {
					state = body
				}
				trailTag.Reset()
			} else {
				trailTag.WriteByte(c)
			}
		}
	}
	if state != top {
		return nil, pgerr.New(pgerr.ParseError, "invalid comment block: unterminated dollar quote")
	}
	return result, nil
}

// cleanedContent removes a uniform indent from content and trims at
// most one leading and one trailing CR?LF, per spec.md §4.A step 5.
func cleanedContent(content string, blockComment bool) string {
	isize := indentSize(content, blockComment)
	var cleaned string
	if isize > 0 {
		var b strings.Builder
		count := 0
		eating := true
		for i := 0; i < len(content); i++ {
			c := content[i]
			if eating {
				if c == '\n' {
					count = isize
					eating = false
				}
				b.WriteByte(c)
				continue
			}
			if c == '\n' {
				count = isize
				b.WriteByte(c)
				continue
			}
			count--
			if count == 0 {
				eating = true
			}
		}
		cleaned = b.String()
	} else {
		cleaned = content
	}

	start := 0
	end := len(cleaned)
	if start < end && cleaned[start] == '\r' {
		start++
	}
	if start < end && cleaned[start] == '\n' {
		start++
	}
	if start < end && cleaned[end-1] == '\n' {
		end--
	}
	if start < end && cleaned[end-1] == '\r' {
		end--
	}
	if start > 0 || end < len(cleaned) {
		return cleaned[start:end]
	}
	return cleaned
}

// indentSize scans content to determine the number of characters to
// remove after each '\n', distinguishing the minimum indent to a
// comment border (a '*' column, for block comments) from the minimum
// indent to actual content, exactly mirroring sql_string.cpp's
// indent_size so that '*'-aligned block comments clean correctly.
func indentSize(content string, blockComment bool) int {
	const (
		counting = iota
		afterAsterisk
		afterNonAsterisk
		skipping
	)
	state := counting
	var minToBorder, minToContent *int
	haveBorder, haveContent := false, false
	setIfLess := func(v **int, have *bool, count int) {
		if !*have {
			n := count
			*v = &n
			*have = true
		} else if count < **v {
			n := count
			*v = &n
		}
	}
	count := 0
	for i := 0; i < len(content); i++ {
		c := content[i]
		switch state {
		case counting:
			switch {
			case c == '\n':
				count = 0
			case c == '*':
				state = afterAsterisk
			case c == ' ' || c == '\t' || c == '\r':
				count++
			default:
				state = afterNonAsterisk
			}
		case afterAsterisk:
			if c == ' ' {
				if haveBorder {
					if count < *minToBorder {
						setIfLess(&minToContent, &haveContent, *minToBorder)
						n := count
						minToBorder = &n
					} else if count == *minToBorder+1 {
						setIfLess(&minToContent, &haveContent, count)
					}
				} else {
					n := count
					minToBorder = &n
					haveBorder = true
				}
			} else {
				setIfLess(&minToContent, &haveContent, count)
			}
			state = skipping
		case afterNonAsterisk:
			setIfLess(&minToContent, &haveContent, count)
			state = skipping
		case skipping:
			if c == '\n' {
				count = 0
				state = counting
			}
		}
	}

	if blockComment {
		if haveBorder {
			if haveContent {
				if *minToContent <= *minToBorder {
					return 0
				}
				if *minToContent == *minToBorder+1 {
					return *minToContent
				}
			}
			return *minToBorder + 1 + 1
		}
		return 0
	}
	// Line comments.
	if haveContent {
		if *minToContent == 0 {
			return 0
		}
		return 1
	}
	return 1
}
