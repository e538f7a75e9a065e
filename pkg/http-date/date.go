// Package httpdate formats and parses HTTP-date values
// as defined in Section 5.6.7 of RFC 9110.
package httpdate

import (
	"strings"
	"time"
)

// imfFixdate is the preferred format, e.g. "Sun, 06 Nov 1994 08:49:37 GMT".
// Senders must generate timestamps in this format only.
const imfFixdate = "Mon, 02 Jan 2006 15:04:05 GMT"

// Format renders t as an IMF-fixdate string in GMT.
func Format(t time.Time) string {
	return t.UTC().Format(imfFixdate)
}

// Parse accepts the preferred IMF-fixdate format as well as the two
// obsolete formats (RFC 850 and ANSI C asctime) that recipients must
// still understand. Timezone capitalization is relaxed, as allowed for
// cache recipients by Section 4.2 of RFC 9111.
func Parse(dateStr string) (time.Time, error) {
	str := strings.ToUpper(strings.TrimSpace(dateStr))
	if date, err := time.Parse(time.RFC1123, str); err == nil {
		return date, nil
	}
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, nil
	}
	return time.Parse(time.ANSIC, str)
}
