package transport

import (
	"errors"
	"fmt"
	neturl "net/url"
)

// ErrUnsupportedScheme is returned by ValidateURL for schemes other than http and https
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q (only http and https are allowed)", ErrUnsupportedScheme, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
