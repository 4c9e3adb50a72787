// ABOUTME: Shared HTTP transport construction with conservative timeouts and TLS minimums
// ABOUTME: Used by llmclient so the outbound connection to the chat completions endpoint is hardened consistently

package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// SecureHTTPClient builds an http.Client with explicit connect/read timeouts,
// TLS 1.2 minimum, and bounded idle connections, guarding against a slow or
// hanging LLM endpoint tying up a connection indefinitely.
func SecureHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: readTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
