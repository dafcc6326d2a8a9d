// Package identity derives the content-addressed keys of graph nodes that have no natural
// identifier, and canonicalizes party names.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
)

// Separator joins the hashed fields. Neither period numbers nor section headers contain it,
// and the detail pages and source pages hashed here carry no URL fragment.
const Separator = "#"

// MandateID identifies the mandate of one politician in one legislative period.
func MandateID(periodNumber, detailPageURL string) string {
	return digest(periodNumber, detailPageURL)
}

// ContentID identifies one section of a source page. Callers pass the trimmed URL and
// header, so sightings that differ only in surrounding whitespace share one id.
func ContentID(sourcePageURL, sectionHeader string) string {
	return digest(sourcePageURL, sectionHeader)
}

// digest is the lowercase hex SHA-1 of a + Separator + b.
func digest(a, b string) string {
	h := sha1.New()
	h.Write([]byte(a))
	h.Write([]byte(Separator))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}
