package ftpsize

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatSize renders n in base-1000 units with one decimal place:
// "0 Bytes", "1 Byte", "999 Bytes", "3.1 kB", "2.0 GB".
func FormatSize(n uint64) string {
	switch {
	case n == 1:
		return "1 Byte"
	case n < 1000:
		return fmt.Sprintf("%d Bytes", n)
	}

	value, prefix := humanize.ComputeSI(float64(n))
	return fmt.Sprintf("%.1f %sB", value, prefix)
}
