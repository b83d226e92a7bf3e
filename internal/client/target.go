package client

import (
	"fmt"
	"net/url"
)

// buildURL joins path segments onto the base URL, escaping each segment.
func buildURL(baseURL string, segments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return u.JoinPath(escaped...).String(), nil
}
