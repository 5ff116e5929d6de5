package shellcache

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"
)

// NewProxy creates a reverse proxy to the origin that sends every request
// through the given round tripper, usually a Controller.
// originHost overrides the Host header and TLS server name if set.
func NewProxy(origin url.URL, originHost string, transport http.RoundTripper, logger *zerolog.Logger) *httputil.ReverseProxy {
	log := zerolog.New(zerolog.NewConsoleWriter())
	if logger != nil {
		log = *logger
	}
	hostHeader := origin.Host
	if originHost != "" {
		hostHeader = originHost
	}
	return &httputil.ReverseProxy{
		Director:  createDirector(origin.Scheme, origin.Host, hostHeader),
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn().Err(err).Str("url", r.URL.String()).Msg("Could not get response")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// OriginTransport returns the network transport for the origin.
// originHost sets the TLS server name if the origin URL is e.g. just an IP address.
func OriginTransport(originHost string) http.RoundTripper {
	if originHost == "" {
		return http.DefaultTransport
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		ServerName: originHost,
	}
	return transport
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}
