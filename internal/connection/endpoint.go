package connection

import (
	"fmt"
	"net/url"
)

// EndpointURL derives the socket URL from the origin the client was loaded
// from. The secure scheme follows the origin: https maps to wss and http to
// ws. Socket schemes (ws, wss, tcp) are accepted as-is. path replaces the
// origin path when non-empty; tcp endpoints ignore it.
func EndpointURL(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpointURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidEndpointURL, origin)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	case "tcp":
		u.Path = ""
		return u.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if path != "" {
		u.Path = path
	}
	return u.String(), nil
}
