package requestclass

import (
	"net/http"
	"net/url"
	"testing"
)

func classify(t *testing.T, method, rawURL string, header http.Header) Class {
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	return Classify(method, u, header)
}

func htmlAccept() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml")
	return h
}

func TestClassify(t *testing.T) {
	tests := []struct {
		method string
		url    string
		header http.Header
		class  Class
	}{
		{"POST", "http://lms.localhost/styles/app.css", nil, NotCacheable},
		{"HEAD", "http://lms.localhost/", htmlAccept(), NotCacheable},
		{"GET", "chrome-extension://abc/script.js", nil, NotCacheable},
		{"GET", "http://lms.localhost/api/courses", htmlAccept(), Api},
		{"GET", "http://lms.localhost/api", nil, Api},
		{"GET", "http://lms.localhost/apiary", nil, Other},
		{"GET", "http://lms.localhost/api/logo.png", nil, Api},
		{"GET", "http://lms.localhost/styles/app.css", nil, StaticAsset},
		{"GET", "https://lms.localhost/fonts/inter.WOFF2", nil, StaticAsset},
		{"GET", "http://lms.localhost/_next/static/chunks/main", nil, StaticAsset},
		{"GET", "http://lms.localhost/photo.jpg", nil, Image},
		{"GET", "http://lms.localhost/avatars/me.avif?size=64", nil, Image},
		{"GET", "http://lms.localhost/dashboard", htmlAccept(), Navigation},
		{"GET", "http://lms.localhost/analytics-beacon", nil, Other},
	}
	for _, test := range tests {
		if class := classify(t, test.method, test.url, test.header); class != test.class {
			t.Fatalf("%s %s classified as %s, expected %s", test.method, test.url, class, test.class)
		}
	}
}

func TestSvgIsStaticAsset(t *testing.T) {
	if class := classify(t, "GET", "http://lms.localhost/icons/logo.svg", nil); class != StaticAsset {
		t.Fatalf("svg classified as %s", class)
	}
}

func TestNavigationByFetchMode(t *testing.T) {
	h := http.Header{}
	h.Set("Sec-Fetch-Mode", "navigate")
	if class := classify(t, "GET", "http://lms.localhost/courses/42", h); class != Navigation {
		t.Fatalf("Navigation classified as %s", class)
	}
}

func TestCustomStaticPrefix(t *testing.T) {
	c := Classifier{StaticPrefixes: []string{"/assets/"}}
	u, _ := url.Parse("http://lms.localhost/assets/bundle")
	if class := c.Classify("GET", u, nil); class != StaticAsset {
		t.Fatalf("Prefixed asset classified as %s", class)
	}
	u, _ = url.Parse("http://lms.localhost/_next/static/bundle")
	if class := c.Classify("GET", u, nil); class != Other {
		t.Fatalf("Default prefix still applied: %s", class)
	}
}

func TestClassString(t *testing.T) {
	if s := StaticAsset.String(); s != "static" {
		t.Fatalf("String is %s", s)
	}
	if s := Class(99).String(); s != "unknown" {
		t.Fatalf("String is %s", s)
	}
}
