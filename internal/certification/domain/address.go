package certification

import (
	"fmt"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress validates a 0x-prefixed account address and lower-cases it.
func NormalizeAddress(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !addressPattern.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, value)
	}
	return strings.ToLower(value), nil
}
