package client

import (
	"net/http"
	"strings"
	"time"
)

// ApiConnectionDetails locates the cluster management API.
type ApiConnectionDetails struct {
	ApiBaseUrl string        `mapstructure:"api-base-url"`
	ApiKey     string        `mapstructure:"api-key"`
	Timeout    time.Duration `mapstructure:"api-timeout"`
}

const apiKeyHeader = "X-API-Key"

// NewHttpClient returns a client that authenticates every request with the static API key.
func NewHttpClient(details *ApiConnectionDetails) *http.Client {
	timeout := details.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &apiKeyTransport{
			apiKey: details.ApiKey,
			next:   http.DefaultTransport,
		},
	}
}

type apiKeyTransport struct {
	apiKey string
	next   http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(apiKeyHeader, t.apiKey)
	req.Header.Set("Accept", "application/json")
	return t.next.RoundTrip(req)
}

func baseUrl(details *ApiConnectionDetails) string {
	return strings.TrimRight(details.ApiBaseUrl, "/") + "/"
}
