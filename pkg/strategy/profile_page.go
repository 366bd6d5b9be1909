package strategy

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// accountIDPatterns are the JSON fragments a profile page has been seen to
// embed the numeric account id in, most specific first
var accountIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"profilePage_(\d+)"`),
	regexp.MustCompile(`"profile_id"\s*:\s*"?(\d+)"?`),
	regexp.MustCompile(`"page_id"\s*:\s*"profilePage_(\d+)"`),
	regexp.MustCompile(`"owner"\s*:\s*\{\s*"id"\s*:\s*"(\d+)"`),
	regexp.MustCompile(`"user_id"\s*:\s*"(\d+)"`),
	regexp.MustCompile(`instagram://user\?id=(\d+)`),
}

// privateNotice is the visible heading of a private profile
const privateNotice = "this account is private"

var numericID = regexp.MustCompile(`^\d+$`)

var notFoundMarkers = []string{
	"sorry, this page isn't available",
	"sorry, this page isn&#39;t available",
	`"httperrorpage"`,
}

// profilePage is what could be recovered from a public profile page
type profilePage struct {
	AccountID string
	Private   bool
	NotFound  bool
}

// parseProfilePage looks for the requested account's own JSON object in the
// inline scripts, then in the raw document. Id patterns and the visible
// private notice are fallbacks for pages that do not embed it.
func parseProfilePage(html, handle string) profilePage {
	var page profilePage
	lower := strings.ToLower(html)

	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			page.NotFound = true
			return page
		}
	}

	username := usernamePattern(handle)
	target, found := account{}, false

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			target, found = findAccount(s.Text(), username)
			return !found
		})
	}
	if !found {
		target, _ = findAccount(html, username)
	}
	page.AccountID = target.id
	page.Private = target.private

	if err == nil {
		if page.AccountID == "" {
			doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				page.AccountID = matchAccountID(s.Text())
				return page.AccountID == ""
			})
		}
		if page.AccountID == "" {
			if content, ok := doc.Find(`meta[property="al:ios:url"]`).Attr("content"); ok {
				page.AccountID = matchAccountID(content)
			}
		}
		if !target.privateKnown {
			page.Private = hasPrivateNotice(doc)
		}
	}

	if page.AccountID == "" {
		page.AccountID = matchAccountID(html)
	}
	return page
}

// hasPrivateNotice checks the rendered text only. Scripts carry translation
// bundles that mention the notice on every page.
func hasPrivateNotice(doc *goquery.Document) bool {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return strings.Contains(strings.ToLower(body.Text()), privateNotice)
}

func usernamePattern(handle string) *regexp.Regexp {
	if handle == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)"username"\s*:\s*"` + regexp.QuoteMeta(handle) + `"`)
}

// account is what the target account's own JSON object says about it
type account struct {
	id           string
	private      bool
	privateKnown bool
}

// findAccount locates the object whose own "username" member matches and
// reads its id and privacy flag. Nested objects such as related profiles
// are not consulted.
func findAccount(text string, username *regexp.Regexp) (account, bool) {
	if username == nil {
		return account{}, false
	}
	for _, loc := range username.FindAllStringIndex(text, -1) {
		obj, ok := enclosingObject(text, loc[0])
		if !ok {
			continue
		}
		var a account
		for _, key := range []string{"id", "pk"} {
			if v, ok := memberValue(obj, key); ok && numericID.MatchString(v) {
				a.id = v
				break
			}
		}
		if v, ok := memberValue(obj, "is_private"); ok {
			a.private, a.privateKnown = v == "true", true
		}
		if a.id != "" || a.privateKnown {
			return a, true
		}
	}
	return account{}, false
}

// enclosingObject returns the innermost JSON object around pos. pos inside
// a string literal does not count.
func enclosingObject(text string, pos int) (string, bool) {
	var stack []int
	start, depth := -1, 0

	for i := 0; i < len(text); i++ {
		if i == pos {
			if len(stack) == 0 {
				return "", false
			}
			start, depth = stack[len(stack)-1], len(stack)
		}
		switch text[i] {
		case '"':
			end := stringEnd(text, i)
			if end < 0 {
				return "", false
			}
			if start < 0 && pos > i && pos <= end {
				return "", false
			}
			i = end
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			if start >= 0 && len(stack) == depth {
				return text[start : i+1], true
			}
			stack = stack[:len(stack)-1]
		}
	}
	return "", false
}

// memberValue returns the raw value of key among obj's own members. String
// values are returned without quotes.
func memberValue(obj, key string) (string, bool) {
	depth := 0
	for i := 0; i < len(obj); i++ {
		switch obj[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case '"':
			end := stringEnd(obj, i)
			if end < 0 {
				return "", false
			}
			name := obj[i+1 : end]
			i = end
			if depth != 1 || name != key {
				continue
			}
			rest := strings.TrimLeft(obj[end+1:], " \t\r\n")
			if !strings.HasPrefix(rest, ":") {
				continue
			}
			rest = strings.TrimLeft(rest[1:], " \t\r\n")
			if strings.HasPrefix(rest, `"`) {
				if e := stringEnd(rest, 0); e > 0 {
					return rest[1:e], true
				}
				return "", false
			}
			n := strings.IndexAny(rest, ",}] \t\r\n")
			if n < 0 {
				n = len(rest)
			}
			return rest[:n], true
		}
	}
	return "", false
}

// stringEnd returns the index of the quote closing the string opened at open
func stringEnd(s string, open int) int {
	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func matchAccountID(text string) string {
	for _, re := range accountIDPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
