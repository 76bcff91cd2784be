package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under ~/.pulse/sessions, so the
// accepted alphabet is deliberately narrow.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects session names that cannot safely become a
// directory name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: use 1-64 characters from [a-z0-9_-]", name)
	}
	return nil
}
