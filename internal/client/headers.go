package client

import "net/http"

// Hop-by-hop headers that must not be sent with a request.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func stripHopByHop(h http.Header) {
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}
}

// prepareHeaders builds request headers from the configured extras and the
// bearer token. The token always wins over an Authorization extra.
func prepareHeaders(extra http.Header, token string, streaming bool) http.Header {
	h := make(http.Header)
	copyHeaders(h, extra)
	stripHopByHop(h)

	h.Del("Host")
	h.Set("Content-Type", "application/json")

	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}

	if streaming {
		// An explicit encoding stops the transport from negotiating gzip, which
		// would hold back partial lines until a compressed block completes.
		h.Set("Accept-Encoding", "identity")
		h.Set("Accept", "text/plain, text/event-stream")
		h.Set("Cache-Control", "no-cache")
	} else {
		h.Set("Accept", "application/json")
	}

	return h
}
