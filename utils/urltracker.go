package utils

import (
	"net/url"
	"path"
	"strings"
	"sync"
)

// URLTracker hands out export downloads at most once. An export is keyed by
// its normalized URL, and no two exports may claim the same destination file.
type URLTracker struct {
	mu     sync.Mutex
	byURL  map[string]string
	byDest map[string]string
}

// NewURLTracker creates a new tracker
func NewURLTracker() *URLTracker {
	return &URLTracker{byURL: make(map[string]string), byDest: make(map[string]string)}
}

// NormalizeURL lowercases scheme and host, cleans the path and drops the
// query and fragment, so mirrors of one export link compare equal
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path != "" {
		u.Path = path.Clean(u.Path)
	}
	u.RawPath, u.RawQuery, u.Fragment = "", "", ""
	return u.String()
}

// Claim reserves the export at rawURL for dest. It returns false when the
// export or the destination was claimed before.
func (t *URLTracker) Claim(rawURL, dest string) bool {
	key := NormalizeURL(rawURL)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byURL[key]; exists {
		return false
	}
	if _, exists := t.byDest[dest]; exists {
		return false
	}
	t.byURL[key] = dest
	t.byDest[dest] = key
	return true
}

// Release forgets a claim so a failed export can be fetched again later
func (t *URLTracker) Release(rawURL string) {
	key := NormalizeURL(rawURL)
	t.mu.Lock()
	defer t.mu.Unlock()
	if dest, ok := t.byURL[key]; ok {
		delete(t.byDest, dest)
		delete(t.byURL, key)
	}
}

// Count returns the number of claimed exports
func (t *URLTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byURL)
}
