package placement

import (
	"fmt"
	"time"
)

// FormatElapsed renders d as H:MM:SS, truncating sub-second precision.
// Negative durations keep a leading minus sign.
func FormatElapsed(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}
