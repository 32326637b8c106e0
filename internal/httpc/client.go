// Package httpc provides the HTTP clients shared by the narrator's adapters.
// Use these instead of http.DefaultClient so every outbound call has a timeout.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for outbound calls.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second

	// GeocodeTimeout bounds reverse geocoding. The user is waiting on it.
	GeocodeTimeout = 10 * time.Second
)

// UserAgent is sent by adapters whose upstream requires identification (Nominatim).
const UserAgent = "go-narrator/1.0 (+https://github.com/teslashibe/go-narrator)"

// Client is a shared HTTP client with production-ready defaults.
var Client = NewClient(DefaultTimeout)

// NewClient creates a new HTTP client with the specified timeout.
// For most cases, use the shared Client variable instead.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// OrDefault returns c, or the shared Client when c is nil.
func OrDefault(c *http.Client) *http.Client {
	if c == nil {
		return Client
	}
	return c
}
