package metadata

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// GatewayURL rewrites a content-addressed URI to an HTTPS gateway URL.
// "ipfs://<cid>[/path]" becomes "https://<host>/ipfs/<cid>[/path]", and
// the same shape holds for any other content scheme. Plain http and
// https URIs pass through untouched. The CID segment is validated, so a
// URI carrying a bogus identifier fails here instead of producing a
// gateway request that can never resolve.
func GatewayURL(host, uri string) (string, error) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found || scheme == "" || rest == "" {
		return "", fmt.Errorf("%w: URI %q has no scheme", ErrMalformed, uri)
	}

	if scheme == "http" || scheme == "https" {
		return uri, nil
	}

	cidSegment, path, _ := strings.Cut(rest, "/")
	if _, err := cid.Decode(cidSegment); err != nil {
		return "", fmt.Errorf("%w: URI %q has invalid CID: %v", ErrMalformed, uri, err)
	}

	url := fmt.Sprintf("https://%s/%s/%s", host, scheme, cidSegment)
	if path != "" {
		url += "/" + path
	}
	return url, nil
}
