// Package sourceurl turns raw user-submitted URLs into the two identities
// the orchestrator keys on: the registrable platform domain (reliability
// tracking) and a canonical source key (duplicate detection).
package sourceurl

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var ErrMalformed = errors.New("malformed source url")

// trackingParams are query parameters that never change the identity of the
// underlying content and would otherwise split duplicates apart.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true,
	"fbclid": true, "gclid": true, "igsh": true, "igshid": true,
	"si": true, "feature": true, "ref": true, "share_id": true,
	"_t": true, "_r": true,
}

// hostPrefixes are subdomains that alias the same platform.
var hostPrefixes = []string{"www.", "m.", "mobile.", "vm.", "web."}

// Normalize parses a raw URL and returns (domain, canonicalKey).
//
// The canonical key is derived conservatively: for platforms whose URL
// layout carries a stable content id (YouTube, Instagram, TikTok) the key is
// rebuilt from that id alone; for everything else it is host+path with
// tracking parameters stripped. A miss costs a redundant extraction; a wrong
// hit would link an unrelated recipe, so no fuzzy matching here.
func Normalize(raw string) (domain, canonicalKey string, err error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", ErrMalformed
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range hostPrefixes {
		if strings.HasPrefix(host, p) {
			host = strings.TrimPrefix(host, p)
			break
		}
	}

	if canonicalHost, key, ok := platformKey(host, u); ok {
		return canonicalHost, key, nil
	}
	return host, genericKey(host, u), nil
}

// platformKey handles platforms with a stable content id in the URL. It
// also canonicalizes alias hosts (youtu.be) onto the platform domain so a
// single reliability record covers them.
func platformKey(host string, u *url.URL) (string, string, bool) {
	path := strings.Trim(u.EscapedPath(), "/")
	segs := strings.Split(path, "/")

	switch host {
	case "youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return "youtube.com", "youtube.com/watch?v=" + v, true
		}
		if len(segs) == 2 && (segs[0] == "shorts" || segs[0] == "embed") {
			return "youtube.com", "youtube.com/watch?v=" + segs[1], true
		}
	case "youtu.be":
		if len(segs) == 1 && segs[0] != "" {
			return "youtube.com", "youtube.com/watch?v=" + segs[0], true
		}
	case "instagram.com":
		// /p/{id}, /reel/{id}, /reels/{id}, /tv/{id}
		if len(segs) >= 2 {
			switch segs[0] {
			case "p", "reel", "reels", "tv":
				return "instagram.com", "instagram.com/p/" + segs[1], true
			}
		}
	case "tiktok.com":
		// /@user/video/{id}: the numeric id alone identifies the video
		if len(segs) == 3 && segs[1] == "video" {
			return "tiktok.com", "tiktok.com/video/" + segs[2], true
		}
	}
	return "", "", false
}

func genericKey(host string, u *url.URL) string {
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if !trackingParams[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	key := host + "/" + strings.Trim(u.EscapedPath(), "/")
	key = strings.TrimSuffix(key, "/")
	if len(keys) == 0 {
		return key
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, q.Get(k)))
	}
	return key + "?" + strings.Join(parts, "&")
}
