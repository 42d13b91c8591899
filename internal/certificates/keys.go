package certificates

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// BucketKey builds the deterministic storage key for an issued
// certificate: slug(courseName)/date/userID/certificate.png. Determinism
// lets a re-run of the issuance job overwrite a half-uploaded object
// instead of orphaning it.
func BucketKey(courseName string, issuedAt time.Time, userID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s/certificate.png",
		Slug(courseName),
		issuedAt.Format("2006-01-02"),
		userID.String(),
	)
}

func Slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "course"
	}
	return out
}
