package effect

import (
	"strings"
	"time"
)

// Vars are the non-time placeholder values.
type Vars struct {
	Side string
	Set  string
}

// Render substitutes the placeholders {{date}}, {{time}}, {{datetime}},
// {{weekday}}, {{side}} and {{set}}. Unknown placeholders are left as is.
func Render(pattern string, now time.Time, vars Vars) string {
	if !strings.Contains(pattern, "{{") {
		return pattern
	}
	r := strings.NewReplacer(
		"{{date}}", now.Format("2006-01-02"),
		"{{time}}", now.Format("15:04"),
		"{{datetime}}", now.Format("2006-01-02 15:04"),
		"{{weekday}}", now.Weekday().String(),
		"{{side}}", vars.Side,
		"{{set}}", vars.Set,
	)
	return r.Replace(pattern)
}
