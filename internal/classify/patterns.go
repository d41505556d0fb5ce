package classify

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// PatternError reports an ignore pattern that does not compile.
type PatternError struct {
	Line    int
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("ignore pattern line %d %q: %v", e.Line, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Patterns is an ordered list of ignore expressions. A path matches when any
// expression matches anywhere in it.
type Patterns struct {
	res []*regexp.Regexp
}

// CompilePatterns compiles exprs in order.
func CompilePatterns(exprs ...string) (*Patterns, error) {
	p := &Patterns{}
	for i, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, &PatternError{Line: i + 1, Pattern: e, Err: err}
		}
		p.res = append(p.res, re)
	}
	return p, nil
}

// ReadPatterns reads one expression per line. Blank lines are skipped but
// still counted for error line numbers.
func ReadPatterns(r io.Reader) (*Patterns, error) {
	p := &Patterns{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			return nil, &PatternError{Line: lineNo, Pattern: line, Err: err}
		}
		p.res = append(p.res, re)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("classify: read patterns: %w", err)
	}
	return p, nil
}

// Match returns the first expression matching path.
func (p *Patterns) Match(path string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, re := range p.res {
		if re.MatchString(path) {
			return re.String(), true
		}
	}
	return "", false
}

// Len returns the number of expressions.
func (p *Patterns) Len() int {
	if p == nil {
		return 0
	}
	return len(p.res)
}
