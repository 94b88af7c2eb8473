package ranking

import (
	"time"
	"unicode/utf8"
)

// DailySeed returns the serendipity seed for a viewer on the UTC calendar
// day containing now: the date as a YYYYMMDD integer plus the code point of
// the first character of viewerID. fallbackOffset is used when viewerID is
// empty.
func DailySeed(now time.Time, viewerID string, fallbackOffset int) int {
	y, m, d := now.UTC().Date()
	date := y*10000 + int(m)*100 + d

	offset := fallbackOffset
	if viewerID != "" {
		r, _ := utf8.DecodeRuneInString(viewerID)
		offset = int(r)
	}
	return date + offset
}
