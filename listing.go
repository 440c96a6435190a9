package ftpsize

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
	"strings"
)

// LineKind classifies one line of a recursive listing.
type LineKind int

const (
	// LineBlank is an empty or whitespace-only line.
	LineBlank LineKind = iota
	// LineDirectoryHeader introduces a subdirectory, e.g. "./pub/data:".
	LineDirectoryHeader
	// LineDirectory is a directory entry ("drwxr-xr-x ...").
	LineDirectory
	// LineSymlink is a symbolic link entry ("lrwxrwxrwx ...").
	LineSymlink
	// LineRegular is anything else; its size is counted.
	LineRegular
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineDirectoryHeader:
		return "directory-header"
	case LineDirectory:
		return "directory"
	case LineSymlink:
		return "symlink"
	case LineRegular:
		return "regular"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// ClassifyLine decides a listing line's kind from its first character.
func ClassifyLine(line string) LineKind {
	if strings.TrimSpace(line) == "" {
		return LineBlank
	}
	switch line[0] {
	case '.':
		return LineDirectoryHeader
	case 'd':
		return LineDirectory
	case 'l':
		return LineSymlink
	default:
		return LineRegular
	}
}

// sizeField is the zero-based index of the size column in a Unix-style entry:
// perms links owner group size month day time name.
const sizeField = 4

// Summary is the reduction of a listing.
type Summary struct {
	// Bytes is the sum of the size field of every counted line.
	Bytes uint64

	// Files is the number of counted lines.
	Files int

	// Skipped is the number of regular lines ignored because they had no
	// size field (e.g. "total 12" lines some servers emit).
	Skipped int
}

// ParseListing sums a recursive listing. Regular lines with fewer than five
// fields are skipped and counted in Summary.Skipped; a size field that is not
// a non-negative integer fails with ErrParse.
func ParseListing(listing string) (Summary, error) {
	return parseListing(listing, false, nil)
}

// ParseListingStrict is ParseListing, except that a regular line without a
// size field is an ErrParse failure instead of being skipped.
func ParseListingStrict(listing string) (Summary, error) {
	return parseListing(listing, true, nil)
}

func parseListing(listing string, strict bool, logger *slog.Logger) (Summary, error) {
	var sum Summary
	for i, line := range strings.Split(listing, "\n") {
		line = strings.TrimRight(line, "\r")
		if ClassifyLine(line) != LineRegular {
			continue
		}

		lineNo := i + 1
		fields := strings.Fields(line)
		if len(fields) <= sizeField {
			if strict {
				return Summary{}, parseError(lineNo, line, fmt.Errorf("expected at least %d fields, got %d", sizeField+1, len(fields)))
			}
			if logger != nil {
				logger.Warn("skipping listing line without a size field", "line", lineNo, "text", line)
			}
			sum.Skipped++
			continue
		}

		size, err := strconv.ParseUint(fields[sizeField], 10, 64)
		if err != nil {
			return Summary{}, parseError(lineNo, line, fmt.Errorf("invalid size %q", fields[sizeField]))
		}

		total, carry := bits.Add64(sum.Bytes, size, 0)
		if carry != 0 {
			return Summary{}, parseError(lineNo, line, errors.New("total size overflows"))
		}
		sum.Bytes = total
		sum.Files++
	}
	return sum, nil
}

func parseError(lineNo int, line string, err error) *Error {
	return &Error{
		Kind: ErrParse,
		Op:   "parse listing",
		Err:  fmt.Errorf("line %d %q: %w", lineNo, line, err),
	}
}
