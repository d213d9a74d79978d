package compose

import (
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/commentreply/internal/domain"
)

const (
	timeLayout     = "15:04"
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// Vars is the placeholder table for one comment.
type Vars map[string]string

// NewVars builds the placeholders available to templates. broadcaster may be nil.
func NewVars(c domain.Comment, broadcaster *domain.BroadcasterContext, now time.Time) Vars {
	name := c.UserName
	if name == "" {
		name = c.UserID
	}
	v := Vars{
		"no":               strconv.Itoa(c.No),
		"user_name":        name,
		"user_id":          c.UserID,
		"comment":          c.Text,
		"time":             now.Format(timeLayout),
		"date":             now.Format(dateLayout),
		"datetime":         now.Format(datetimeLayout),
		"broadcaster_name": "",
	}
	if broadcaster != nil {
		v["broadcaster_name"] = broadcaster.Name
	}
	return v
}

// Expand substitutes every known placeholder in tpl, written as {name} or {{name}}.
// Unknown placeholders are left as they are and substituted values are not expanded again.
func Expand(tpl string, vars Vars) string {
	if !strings.Contains(tpl, "{") {
		return tpl
	}

	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); {
		if tpl[i] != '{' {
			j := strings.IndexByte(tpl[i:], '{')
			if j < 0 {
				b.WriteString(tpl[i:])
				break
			}
			b.WriteString(tpl[i : i+j])
			i += j
			continue
		}
		if value, n, ok := placeholder(tpl[i:], vars); ok {
			b.WriteString(value)
			i += n
			continue
		}
		b.WriteByte('{')
		i++
	}
	return b.String()
}

// placeholder matches a known placeholder at the start of s and returns its value and
// the number of bytes it spans.
func placeholder(s string, vars Vars) (string, int, bool) {
	if strings.HasPrefix(s, "{{") {
		if end := strings.Index(s, "}}"); end > 2 {
			if v, ok := vars[s[2:end]]; ok {
				return v, end + 2, true
			}
		}
	}
	if end := strings.IndexByte(s, '}'); end > 1 {
		if v, ok := vars[s[1:end]]; ok {
			return v, end + 1, true
		}
	}
	return "", 0, false
}
