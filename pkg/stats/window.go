package stats

import (
	"time"
)

// Start tokens
const (
	StartNow       = "now"
	StartToday     = "bod"
	StartYesterday = "boy"
	StartTomorrow  = "bot"
)

// End tokens
const (
	EndToday     = "eod"
	EndYesterday = "eoy"
	EndTomorrow  = "eot"
	EndYear      = "eoyr"
)

// FloorToHour truncates a unix timestamp to the start of its hour.
func FloorToHour(ts int64) int64 {
	return ts - ts%3600
}

// ResolveStart turns a start token or an offset in seconds into a unix
// timestamp. Calendar tokens are evaluated in loc. The second return is false
// when the token is not recognised.
func ResolveStart(token string, now time.Time, loc *time.Location) (int64, bool) {
	local := now.In(loc)
	switch token {
	case StartNow:
		return FloorToHour(now.Unix()), true
	case StartToday:
		return dayStart(local, 0), true
	case StartYesterday:
		return dayStart(local, -1), true
	case StartTomorrow:
		return dayStart(local, 1), true
	}
	if n, ok := parseOffset(token); ok {
		return FloorToHour(now.Unix() + n), true
	}
	return 0, false
}

// ResolveEnd turns an end token or an offset in seconds into a unix
// timestamp. Offsets move the end forward from now.
func ResolveEnd(token string, now time.Time, loc *time.Location) (int64, bool) {
	local := now.In(loc)
	y, m, d := local.Date()
	switch token {
	case EndToday:
		// the API prefers the exclusive next-day boundary over 23:59:59
		return dayStart(local, 1), true
	case EndYesterday:
		return time.Date(y, m, d-1, 23, 59, 59, 0, loc).Unix(), true
	case EndTomorrow:
		return time.Date(y, m, d+1, 23, 59, 59, 0, loc).Unix(), true
	case EndYear:
		return time.Date(y, time.December, 31, 23, 59, 59, 0, loc).Unix(), true
	}
	if n, ok := parseOffset(token); ok {
		return FloorToHour(now.Unix() + n), true
	}
	return 0, false
}

func dayStart(t time.Time, days int) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, t.Location()).Unix()
}

// parseOffset reads a leading signed integer, ignoring leading whitespace and
// any trailing text, so "3600s" is 3600.
func parseOffset(s string) (int64, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	var n int64
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
