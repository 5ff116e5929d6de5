package requestclass

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Class identifies which caching strategy applies to a request.
type Class int

const (
	// NotCacheable requests bypass all caching logic.
	NotCacheable Class = iota
	Navigation
	StaticAsset
	Image
	Api
	Other
)

var classNames = map[Class]string{
	NotCacheable: "not-cacheable",
	Navigation:   "navigation",
	StaticAsset:  "static",
	Image:        "image",
	Api:          "api",
	Other:        "other",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// DefaultStaticPrefixes are the build-output paths served as static assets.
var DefaultStaticPrefixes = []string{"/_next/static/"}

var (
	staticExtensions = extensionSet("js", "css", "woff", "woff2", "ttf", "eot", "svg", "ico")
	imageExtensions  = extensionSet("png", "jpg", "jpeg", "gif", "webp", "avif", "svg")
)

func extensionSet(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		m["."+ext] = struct{}{}
	}
	return m
}

// Classifier maps requests to classes. The zero value uses DefaultStaticPrefixes.
type Classifier struct {
	StaticPrefixes []string
}

// Classify classifies a request with the default static prefixes.
func Classify(method string, u *url.URL, header http.Header) Class {
	return Classifier{}.Classify(method, u, header)
}

// Classify maps a request to its class. Rules are checked in order and the first match wins;
// an svg path therefore counts as a static asset, not as an image.
func (c Classifier) Classify(method string, u *url.URL, header http.Header) Class {
	if method != http.MethodGet {
		return NotCacheable
	}
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return NotCacheable
	}
	p := u.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") {
		return Api
	}
	ext := strings.ToLower(path.Ext(p))
	if _, ok := staticExtensions[ext]; ok || c.underStaticPrefix(p) {
		return StaticAsset
	}
	if _, ok := imageExtensions[ext]; ok {
		return Image
	}
	if isNavigation(header) {
		return Navigation
	}
	return Other
}

// ClassifyRequest is a shorthand for classifying an outgoing request.
func (c Classifier) ClassifyRequest(r *http.Request) Class {
	return c.Classify(r.Method, r.URL, r.Header)
}

func (c Classifier) underStaticPrefix(p string) bool {
	prefixes := c.StaticPrefixes
	if prefixes == nil {
		prefixes = DefaultStaticPrefixes
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// isNavigation reports top-level navigations (Sec-Fetch-Mode) and requests accepting HTML.
func isNavigation(header http.Header) bool {
	if header == nil {
		return false
	}
	if strings.EqualFold(header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	for _, accept := range header.Values("Accept") {
		if strings.Contains(strings.ToLower(accept), "text/html") {
			return true
		}
	}
	return false
}
