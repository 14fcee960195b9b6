package conversation

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/filestore"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// placeholder marks the spot where an image reference was lifted out of a
// text body. The %d is the 0-based index into that message's image list and
// is rewritten to the bound tag before the prompt is sent.
const placeholder = "[IMG_%d]"

// base64Placeholder replaces inline base64 payloads that are neutralised
// without being bound (legacy records, non-image turns).
const base64Placeholder = "[image]"

// ExtractRule is one pattern of the ordered image-reference extraction
// table. URLGroup selects the submatch holding the image URL.
type ExtractRule struct {
	Name     string
	Pattern  *regexp.Regexp
	URLGroup int
}

// extractRules is evaluated in order; earlier rules claim their matches
// first so e.g. a markdown image is never re-matched as a bare data URI.
var extractRules = []ExtractRule{
	{
		Name:     "markdown-image",
		Pattern:  regexp.MustCompile(`!\[[^\]]*\]\(\s*(\S+?)\s*\)`),
		URLGroup: 1,
	},
	{
		Name:     "html-img",
		Pattern:  regexp.MustCompile(`(?i)<img[^>]*\bsrc\s*=\s*["']([^"']+)["'][^>]*/?>`),
		URLGroup: 1,
	},
	{
		Name:     "data-uri",
		Pattern:  regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`),
		URLGroup: 0,
	},
	{
		Name:     "upload-path",
		Pattern:  regexp.MustCompile(`(?:^|\s)((?:/)?uploads/[\w.-]+\.(?:png|jpe?g|gif|webp))`),
		URLGroup: 1,
	},
}

// Rules exposes the extraction table, mainly so tests can verify coverage
// per pattern.
func Rules() []ExtractRule {
	return extractRules
}

var inlineBase64Pattern = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

// NeutralizeBase64 replaces inline base64 image payloads with a short
// placeholder so legacy or malformed records cannot blow up the token
// budget of a context window.
func NeutralizeBase64(text string) string {
	return inlineBase64Pattern.ReplaceAllString(text, base64Placeholder)
}

// ExtractImages lifts every image reference out of text using the rule
// table, replacing each occurrence with an indexed placeholder and
// returning the URLs in order of first appearance. The same URL appearing
// twice keeps a single index.
func ExtractImages(text string) (string, []string) {
	var urls []string
	index := make(map[string]int)

	for _, rule := range extractRules {
		text = rule.Pattern.ReplaceAllStringFunc(text, func(match string) string {
			sub := rule.Pattern.FindStringSubmatch(match)
			if rule.URLGroup >= len(sub) {
				return match
			}
			url := sub[rule.URLGroup]
			i, seen := index[url]
			if !seen {
				i = len(urls)
				index[url] = i
				urls = append(urls, url)
			}
			// Keep any text around the URL inside the match (upload-path
			// keeps its leading whitespace, markdown/html are dropped whole).
			return strings.Replace(match, url, fmt.Sprintf(placeholder, i), 1)
		})
	}

	// Strip emptied markdown/html shells left around the placeholder.
	text = regexp.MustCompile(`!\[[^\]]*\]\(\s*(\[IMG_\d+\])\s*\)`).ReplaceAllString(text, "$1")
	text = regexp.MustCompile(`(?i)<img[^>]*\bsrc\s*=\s*["'](\[IMG_\d+\])["'][^>]*/?>`).ReplaceAllString(text, "$1")

	return text, urls
}

var dataURIPattern = regexp.MustCompile(`data:(image/[a-zA-Z0-9.+-]+);base64,([A-Za-z0-9+/=]+)`)

// Materializer persists data-URI images to the file store, replacing each
// URI with its storage path everywhere it recurs. One instance is shared
// across concurrent replies; the cache keeps each payload written exactly
// once and is synchronized.
type Materializer struct {
	files filestore.Store

	mu    sync.Mutex
	cache map[string]string
}

func NewMaterializer(files filestore.Store) *Materializer {
	return &Materializer{files: files, cache: make(map[string]string)}
}

// Rewrite replaces every data-URI image in text with its persisted path.
// Payloads that fail to decode or to persist are left in place rather than
// failing the whole turn.
func (m *Materializer) Rewrite(text string) string {
	if m == nil || m.files == nil {
		return text
	}
	return dataURIPattern.ReplaceAllStringFunc(text, func(uri string) string {
		return m.Resolve(uri)
	})
}

// Resolve returns the storage path for one data URI, writing it on first
// sight and serving the cache afterwards. Non-data URIs pass through.
func (m *Materializer) Resolve(uri string) string {
	if !strings.HasPrefix(uri, "data:") {
		return uri
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if path, ok := m.cache[uri]; ok {
		return path
	}
	sub := dataURIPattern.FindStringSubmatch(uri)
	if sub == nil {
		return uri
	}
	data, err := base64.StdEncoding.DecodeString(sub[2])
	if err != nil {
		logx.Warn().Err(err).Msg("undecodable data uri left in place")
		return uri
	}
	path, err := m.files.WriteImage(data, sub[1])
	if err != nil {
		logx.Warn().Err(err).Msg("failed to persist data uri image")
		return uri
	}
	m.cache[uri] = path
	return path
}
