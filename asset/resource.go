// Package asset opens scene files and the files they reference.
package asset

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("resource: unsupported scheme")
	ErrFetchFailed       = errors.New("resource: could not fetch")
)

// Remote resources are fetched with this client.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Resource is a readable local file or remote document.
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Path returns the location of the resource.
func (r *Resource) Path() string {
	return r.url.String()
}

// IsRemote returns true if the resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// Open a resource. When relTo is set and path has no scheme, path is
// resolved against the directory of relTo, so a scene file can reference
// material libraries next to it both on disk and on a web server.
//
// The caller must Close the returned resource.
func NewResource(path string, relTo *Resource) (*Resource, error) {
	loc, err := url.Parse(strings.Replace(path, `\`, `/`, -1))
	if err != nil {
		return nil, err
	}

	if loc.Scheme == "" && relTo != nil {
		rel := loc.Path
		loc, _ = url.Parse(relTo.url.String())
		base := loc.Path
		if loc.Scheme == "" {
			if base, err = filepath.Abs(relTo.url.String()); err != nil {
				return nil, fmt.Errorf("resource: could not detect abs path for %s: %w", relTo.url, err)
			}
		}
		loc.Path = filepath.Dir(base) + "/" + rel
	}

	var rc io.ReadCloser
	switch loc.Scheme {
	case "":
		if rc, err = os.Open(filepath.Clean(loc.Path)); err != nil {
			return nil, err
		}
	case "http", "https":
		resp, err := httpClient.Get(loc.String())
		if err != nil {
			return nil, fmt.Errorf("%w '%s': %v", ErrFetchFailed, loc, err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w '%s': status %d", ErrFetchFailed, loc, resp.StatusCode)
		}
		rc = resp.Body
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnsupportedScheme, loc.Scheme)
	}

	return &Resource{ReadCloser: rc, url: loc}, nil
}

// NewResourceFromStream wraps an in-memory stream.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	loc, _ := url.Parse(name)
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        loc,
	}
}
