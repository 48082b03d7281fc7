// Package httputil builds the HTTP clients the daemon shares: one shaped for
// the profile platform and one plain client for third-party APIs.
package httputil

import (
	"crypto/tls"
	"log"
	"net/http"
	"net/url"
	"time"

	"gramscout/config"
)

const apiTimeout = 30 * time.Second

type Clients struct {
	Source *http.Client // optionally proxied, for the profile platform
	API    *http.Client // direct, for Apify and report uploads
}

func NewClients(cfg *config.SourceConfig) *Clients {
	return &Clients{
		Source: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: platformTransport(cfg.Proxy),
			// A 3xx from the platform is a login wall or a challenge page,
			// never content; hand it back instead of following it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		API: &http.Client{Timeout: apiTimeout},
	}
}

// platformTransport keeps the connection on HTTP/1.1 and routes through the
// configured proxy when one is set.
func platformTransport(proxy string) *http.Transport {
	t := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	if proxy == "" {
		return t
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		log.Printf("Warning: ignoring invalid proxy URL: %v", err)
		return t
	}
	t.Proxy = http.ProxyURL(proxyURL)
	return t
}
