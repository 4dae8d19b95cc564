package torn

import (
	"strconv"
	"strings"
	"time"
)

// ProgressBar renders score/target as a fixed-length discretized bar.
// The filled segment count is clamped to [0, length]; a non-positive
// target yields a neutral (empty) bar instead of dividing by zero.
func ProgressBar(score, target int64, length int) string {
	if length <= 0 {
		return ""
	}
	filled := 0
	if target > 0 {
		ratio := float64(score) / float64(target)
		if ratio > 1 {
			ratio = 1
		}
		if ratio > 0 {
			filled = int(ratio * float64(length))
		}
	}
	if filled > length {
		filled = length
	}
	return strings.Repeat("🟩", filled) + strings.Repeat("⬜", length-filled)
}

// FormatDelta renders a duration floored to whole units with a cascading
// format: days+hours, else hours+minutes, else minutes.
func FormatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	switch {
	case total >= 86400:
		return strconv.FormatInt(total/86400, 10) + "d " + strconv.FormatInt(total%86400/3600, 10) + "h"
	case total >= 3600:
		return strconv.FormatInt(total/3600, 10) + "h " + strconv.FormatInt(total%3600/60, 10) + "m"
	default:
		return strconv.FormatInt(total/60, 10) + "m"
	}
}

// FormatNumber groups digits with commas (1234567 -> "1,234,567").
func FormatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
