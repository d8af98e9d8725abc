// Package clientheader parses the Storefront-Client request header that
// carries the shopper's session id and the client build version.
package clientheader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// Name is the header carrying client identity.
const Name = "Storefront-Client"

// Client is the parsed header.
type Client struct {
	Session string
	Version string // canonical semver with a "v" prefix, empty if absent
}

// Parse extracts the session id and version from a Storefront-Client
// header (RFC 8941 Dictionary).
//
// Examples:
//   - session="4f1c"                  → session 4f1c, no version
//   - session="4f1c", version="1.4.2" → session 4f1c, version v1.4.2
//
// Returns error if header is empty, malformed, or missing the session key.
func Parse(header string) (*Client, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, errors.New("empty Storefront-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, fmt.Errorf("invalid Storefront-Client header: %w", err)
	}

	session, err := stringMember(dict, "session")
	if err != nil {
		return nil, err
	}
	if session == "" {
		return nil, errors.New("session value must not be empty")
	}

	c := &Client{Session: session}
	if _, ok := dict.Get("version"); ok {
		v, err := stringMember(dict, "version")
		if err != nil {
			return nil, err
		}
		c.Version = canonical(v)
		if c.Version == "" {
			return nil, fmt.Errorf("version %q is not a semantic version", v)
		}
	}
	return c, nil
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", fmt.Errorf("%s key not found in Storefront-Client header", key)
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	s, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

// canonical returns v as canonical semver ("1.2" → "v1.2.0"), or "" if
// it is not a valid version.
func canonical(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// Supported reports whether the client's version meets min. An empty min
// accepts every client; a client without a version is accepted only then.
func (c *Client) Supported(min string) bool {
	min = canonical(min)
	if min == "" {
		return true
	}
	if c.Version == "" {
		return false
	}
	return semver.Compare(c.Version, min) >= 0
}
