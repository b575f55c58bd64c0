package client

import (
	"net/http"
	"time"

	"kptv-browser/work/config"
)

// DefaultUserAgent is sent when a request is not tied to a configured source.
const DefaultUserAgent = "VLC/3.0.18 LibVLC/3.0.18"

// HeaderSettingClient wraps http.Client to set the source-specific headers on
// every outbound playlist or manifest request.
type HeaderSettingClient struct {
	Client *http.Client
}

// NewHeaderSettingClient builds a client with no overall timeout. Only the wait
// for response headers is bounded; a slow body is left to the caller's context.
func NewHeaderSettingClient() *HeaderSettingClient {
	client := &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &HeaderSettingClient{Client: client}
}

// Do sends req with the headers of source; source may be nil.
func (hsc *HeaderSettingClient) Do(req *http.Request, source *config.SourceConfig) (*http.Response, error) {
	setHeaders(req, source)
	return hsc.Client.Do(req)
}

func setHeaders(req *http.Request, source *config.SourceConfig) {
	userAgent := DefaultUserAgent
	if source != nil && source.UserAgent != "" {
		userAgent = source.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	if source == nil {
		return
	}
	if source.ReqOrigin != "" {
		req.Header.Set("Origin", source.ReqOrigin)
	}
	if source.ReqReferrer != "" {
		req.Header.Set("Referer", source.ReqReferrer)
	}
}
