package util

import (
	"net/http"
	"net/url"
)

// NewProxyFunc builds a proxy selector from explicit settings.
// With no proxy URLs it defers to the environment.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	bypass := SplitList(noProxy)

	return func(req *http.Request) (*url.URL, error) {
		if HostMatches(req.URL.Hostname(), bypass) {
			return nil, nil
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return nil, nil
	}
}
