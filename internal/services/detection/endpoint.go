package detection

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ParseGRPCEndpoint normalizes endpoint into host:port and picks transport
// credentials. Bare hosts and the usual TLS ports get TLS, everything else
// is dialed in plaintext.
func ParseGRPCEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if endpoint == "" {
		return "", nil, fmt.Errorf("empty endpoint")
	}

	// Add scheme if missing
	if !strings.Contains(endpoint, "://") {
		if strings.Contains(endpoint, ":") {
			parts := strings.Split(endpoint, ":")
			if port, err := strconv.Atoi(parts[len(parts)-1]); err == nil && (port == 443 || port == 8443 || port == 9443) {
				endpoint = "https://" + endpoint
			} else {
				endpoint = "http://" + endpoint
			}
		} else {
			endpoint = "https://" + endpoint + ":443"
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Hostname() == "" {
		return "", nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https", "grpcs":
			host = u.Hostname() + ":443"
		case "http", "grpc":
			host = u.Hostname() + ":80"
		default:
			return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
		}
	}

	var creds credentials.TransportCredentials
	switch u.Scheme {
	case "https", "grpcs":
		creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname()})
	case "http", "grpc":
		creds = insecure.NewCredentials()
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	return host, creds, nil
}
