package service

import (
	"regexp"

	"github.com/and161185/course-keeper/internal/errs"
)

// A visitor id names one browser (or one local client) before it has an account. State kept for
// a visitor never leaks to another one.
var visitorPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func checkVisitor(visitor string) error {
	if !visitorPattern.MatchString(visitor) {
		return errs.Invalid("visitor_id", "Missing or malformed visitor id")
	}
	return nil
}
