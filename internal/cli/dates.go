package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDate accepts YYYY-MM-DD or an English expression such as
// "next monday" or "in 2 weeks", relative to base.
func parseDate(value string, base time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", workflow.ErrValidation)
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	r, err := dateParser.Parse(value, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse date %q: %v", workflow.ErrValidation, value, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: unrecognized date %q", workflow.ErrValidation, value)
	}
	return workflow.Date(r.Time), nil
}
