package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArgument is returned for a malformed path:line:column argument or
// a wrong argument count.
var ErrInvalidArgument = errors.New("invalid argument")

// ParseFileWithCursor splits "path:line:column" into its parts. Line and
// column are returned 1-based, as typed.
func ParseFileWithCursor(s string) (path string, line, column int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: %q is not of the form path:line:column", ErrInvalidArgument, s)
	}

	path = parts[0]
	if path == "" {
		return "", 0, 0, fmt.Errorf("%w: %q has an empty path", ErrInvalidArgument, s)
	}

	line, err = strconv.Atoi(parts[1])
	if err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("%w: line %q must be a positive integer", ErrInvalidArgument, parts[1])
	}

	column, err = strconv.Atoi(parts[2])
	if err != nil || column < 1 {
		return "", 0, 0, fmt.Errorf("%w: column %q must be a positive integer", ErrInvalidArgument, parts[2])
	}

	return path, line, column, nil
}
