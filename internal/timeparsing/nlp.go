package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage parses English expressions such as "tomorrow at
// 6am" or "next saturday 22:00" relative to now. The whole input must be
// consumed so fragments like "deploy at 5" do not half-match.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("natural language parse: %w", err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no time expression found in %q", s)
	}
	if r.Index != 0 || len(r.Text) != len(s) {
		return time.Time{}, fmt.Errorf("unrecognised text in %q", s)
	}
	return r.Time, nil
}
