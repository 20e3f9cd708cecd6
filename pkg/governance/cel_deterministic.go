package governance

import (
	"fmt"
	"regexp"
	"sort"
)

// bannedFunctions may not appear in appliesWhen expressions: a policy's
// applicability must depend only on the request, never on the clock or on
// randomness.
var bannedFunctions = []string{
	"now",
	"timestamp",
	"duration",
	"random",
	"uuid",
	"getDate",
	"getDayOfMonth",
	"getDayOfWeek",
	"getDayOfYear",
	"getFullYear",
	"getHours",
	"getMilliseconds",
	"getMinutes",
	"getMonth",
	"getSeconds",
}

var bannedCallPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(bannedFunctions))
	for _, fn := range bannedFunctions {
		out[fn] = regexp.MustCompile(`\b` + regexp.QuoteMeta(fn) + `\s*\(`)
	}
	return out
}()

// CheckDeterministic rejects expressions that call a banned function.
func CheckDeterministic(expr string) error {
	var found []string
	for fn, re := range bannedCallPatterns {
		if re.MatchString(expr) {
			found = append(found, fn)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Strings(found)
	return fmt.Errorf("governance: nondeterministic function(s) %v in appliesWhen", found)
}
