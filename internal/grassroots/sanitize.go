package grassroots

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// cleanText strips all markup from s. StrictPolicy entity-encodes what it
// keeps, so the result is unescaped back to plain text.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
