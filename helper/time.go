package helper

import (
	"fmt"
	"time"
)

// FormatTTL renders d with one decimal in the largest fitting unit.
func FormatTTL(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	if d.Minutes() >= 1 {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	if d.Seconds() >= 1 {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
