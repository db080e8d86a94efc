// Package classify maps raw user input to a content type.
package classify

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"contentflow/internal/models"
	"contentflow/internal/util"
)

var (
	tweetPattern    = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|mobile\.)?(?:twitter\.com|x\.com)/[A-Za-z0-9_]+/status(?:es)?/(\d+)`)
	documentPattern = regexp.MustCompile(`(?i)\.(pdf|docx?|txt|rtf|odt|md)$`)
	notionPattern   = regexp.MustCompile(`(?i)^(?:https?://)?(?:[a-z0-9-]+\.)*notion\.(?:so|site)(?:[/?#]|$)`)
	hostPattern     = regexp.MustCompile(`(?i)^(?:https?://)?(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}(?::\d{1,5})?(?:[/?#]\S*)?$`)
)

// Rules run in this order; the first match wins. Workspace and document checks
// must precede the generic hostname rule.
var rules = []struct {
	typ   models.ContentType
	match func(s string) bool
}{
	{models.TypeTweet, tweetPattern.MatchString},
	{models.TypeDocument, isDocumentRef},
	{models.TypeNotion, notionPattern.MatchString},
	{models.TypePage, hostPattern.MatchString},
}

// Classify returns the content type of raw input. Anything that is not a
// single link-shaped token is a note.
func Classify(content string) (t models.ContentType, err error) {
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("classify: invalid utf-8: %w", util.ErrClassification)
	}
	s := strings.TrimSpace(content)
	if s == "" {
		return "", fmt.Errorf("classify: empty content: %w", util.ErrClassification)
	}
	defer func() {
		if r := recover(); r != nil {
			t, err = "", fmt.Errorf("classify: %v: %w", r, util.ErrClassification)
		}
	}()

	if strings.ContainsAny(s, " \t\r\n") {
		return models.TypeNote, nil
	}
	for _, rule := range rules {
		if rule.match(s) {
			return rule.typ, nil
		}
	}
	return models.TypeNote, nil
}

// Resolve honours a caller-declared type and classifies otherwise.
func Resolve(declared models.ContentType, content string) (models.ContentType, error) {
	if declared != "" {
		if !declared.Valid() {
			return "", fmt.Errorf("classify: unknown type %q: %w", declared, util.ErrClassification)
		}
		return declared, nil
	}
	return Classify(content)
}

func isDocumentRef(s string) bool {
	return documentPattern.MatchString(stripQuery(s))
}

// DocumentExtension returns the lower-cased extension of a document reference
// without the dot, ignoring query and fragment.
func DocumentExtension(ref string) string {
	m := documentPattern.FindStringSubmatch(stripQuery(strings.TrimSpace(ref)))
	if m != nil {
		return strings.ToLower(m[1])
	}
	p := stripQuery(strings.TrimSpace(ref))
	if i := strings.LastIndex(p, "."); i >= 0 && i > strings.LastIndex(p, "/") {
		return strings.ToLower(p[i+1:])
	}
	return ""
}

// TweetID extracts the numeric post id from a social post URL.
func TweetID(ref string) (string, bool) {
	m := tweetPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CanonicalURL is the URL persisted for dedup. Notes have none.
func CanonicalURL(t models.ContentType, content string) string {
	s := strings.TrimSpace(content)
	switch t {
	case models.TypeNote:
		return ""
	case models.TypeTweet:
		return stripQuery(s)
	default:
		return s
	}
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// Host returns the hostname of a link-shaped reference, adding a scheme when missing.
func Host(ref string) string {
	s := strings.TrimSpace(ref)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
