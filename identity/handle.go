package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gramscout/models"
)

var (
	handleRegex = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

	// ErrInvalidHandle means the input cannot name a profile on the platform
	ErrInvalidHandle = errors.New("invalid profile handle")
)

// NormalizeHandle turns user input ("@Some.Shop ", "https://instagram.com/some.shop")
// into the canonical lowercase handle used as the identifier everywhere:
// cache keys, storage rows and source requests.
func NormalizeHandle(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimPrefix(h, "www.")
	h = strings.TrimPrefix(h, "instagram.com/")
	h = strings.TrimSuffix(h, "/")
	h = strings.TrimPrefix(h, "@")
	h = strings.ToLower(h)
	if !handleRegex.MatchString(h) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return h, nil
}

// Fingerprint hashes the fields of a snapshot that matter for change
// detection. Two fetches of an unchanged profile produce the same value,
// so upserts can tell a real update from a re-crawl.
func Fingerprint(snap *models.ProfileSnapshot) string {
	input := fmt.Sprintf("%s|%d|%d|%d|%t|%t",
		snap.Username,
		snap.Followers,
		snap.Following,
		snap.TotalPosts,
		snap.IsVerified,
		snap.IsBusiness,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}
