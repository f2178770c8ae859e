package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Ms converts a millisecond count to a Duration.
func Ms(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// ToMs converts d to whole milliseconds.
func ToMs(d time.Duration) int { return int(d / time.Millisecond) }
