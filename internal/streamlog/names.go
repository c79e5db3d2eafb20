package streamlog

import (
	"fmt"
	"regexp"
)

var (
	logNameRe   = regexp.MustCompile(`^[A-Za-z0-9._-]{1,200}$`)
	groupNameRe = regexp.MustCompile(`^[A-Za-z0-9._/:-]{1,200}$`)
)

// ValidateLogName checks that name is usable as a log name on every backend.
func ValidateLogName(name string) error {
	if !logNameRe.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: log %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateGroupName checks a consumer group name.
func ValidateGroupName(group string) error {
	if !groupNameRe.MatchString(group) {
		return fmt.Errorf("%w: group %q", ErrInvalidName, group)
	}
	return nil
}
