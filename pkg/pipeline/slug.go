package pipeline

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify turns a stage title into a lowercase ascii slug. Diacritics
// are stripped ("Negociação" -> "negociacao"), runs of anything else
// collapse into single dashes.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, title)
	if err != nil {
		ascii = title
	}

	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(ascii) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// mintStageID derives a stable stage id from a title, avoiding ids
// already taken in the pipeline. Collisions get a short random suffix.
func mintStageID(title string, taken map[string]bool) string {
	slug := Slugify(title)
	if slug == "" {
		slug = "stage"
	}
	if !taken[slug] {
		return slug
	}
	return slug + "-" + uuid.NewString()[:8]
}
