package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// randomToken returns n lowercase hex characters from a fresh V4 UUID (n <= 32).
func randomToken(n int) string {
	id := uuid.Must(uuid.NewV4())
	return strings.ReplaceAll(id.String(), "-", "")[:n]
}

// newPurchaseID builds local_<unix millis>_<courseId>_<random>.
func newPurchaseID(now time.Time, courseID string) string {
	return fmt.Sprintf("local_%d_%s_%s", now.UnixMilli(), courseID, randomToken(9))
}

// newActivityID builds act_<unix millis>_<random>.
func newActivityID(now time.Time) string {
	return fmt.Sprintf("act_%d_%s", now.UnixMilli(), randomToken(9))
}

func newUserID() string {
	return uuid.Must(uuid.NewV4()).String()
}
