package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DeriveStreamBaseURL maps a deployment base URL to the base URL serving the
// streaming endpoint. Hosted deployments expose the stream on the ".site"
// sibling of their ".cloud" host; local deployments expose it one port above
// the configured one.
func DeriveStreamBaseURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing scheme or host", base)
	}

	if strings.HasSuffix(u.Hostname(), ".cloud") {
		host := strings.TrimSuffix(u.Hostname(), ".cloud") + ".site"
		if port := u.Port(); port != "" {
			host += ":" + port
		}
		u.Host = host
		return u.String(), nil
	}

	port := u.Port()
	if port == "" {
		return "", fmt.Errorf("cannot derive stream URL from %q: no explicit port", base)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return "", fmt.Errorf("invalid port in base URL %q: %w", base, err)
	}
	u.Host = u.Hostname() + ":" + strconv.Itoa(n+1)
	return u.String(), nil
}
