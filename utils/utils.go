package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/unicode/norm"
)

const RefreshCookieName = "refreshToken"

// NormalizeEmail trims, applies NFKC and lowercases so that lookups and the
// unique index agree on one spelling per address.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(email)))
}

// NormalizeName collapses internal whitespace and strips control characters.
func NormalizeName(name string) string {
	t := norm.NFC.String(name)
	var b strings.Builder
	for _, r := range t {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// HashToken returns the hex SHA-256 of a raw token. Registries store this,
// never the token itself.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" header.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// CookieSettings controls the refresh token cookie.
type CookieSettings struct {
	Secure bool
	Domain string
}

func SetRefreshCookie(c *gin.Context, cs CookieSettings, token string, maxAgeSeconds int) {
	if cs.Secure {
		c.SetSameSite(http.SameSiteNoneMode) // for cross-site
	} else {
		c.SetSameSite(http.SameSiteStrictMode)
	}
	c.SetCookie(RefreshCookieName, token, maxAgeSeconds, "/auth", cs.Domain, cs.Secure, true)
}

func ClearRefreshCookie(c *gin.Context, cs CookieSettings) {
	c.SetCookie(RefreshCookieName, "", -1, "/auth", cs.Domain, cs.Secure, true)
}
