package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// Client talks to the trackr auth service. It covers the public endpoints
// and creates authenticated Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SessionFromToken wraps a token obtained earlier, e.g. kept by a browser.
func (c *Client) SessionFromToken(token string) *Session {
	return &Session{client: c, token: token}
}
