package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
	"golang.org/x/mod/semver"
)

const (
	releaseEndpoint      = "https://api.github.com/repos/murmurhq/murmur-capture/releases/latest"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second // keep startup free of network calls
	versionCheckTimeout  = 30 * time.Second
	versionMaxAttempts   = 3
	versionRetryDelay    = time.Minute
)

// VersionChecker polls GitHub for published releases so the control surface
// can show when an agent runs outdated firmware.
type VersionChecker struct {
	mu     sync.RWMutex
	latest string
	etag   string
}

// NewVersionChecker starts the background poller.
func NewVersionChecker() *VersionChecker {
	vc := &VersionChecker{}
	go vc.poll()
	return vc
}

// poll runs for the lifetime of the agent.
func (vc *VersionChecker) poll() {
	time.Sleep(versionCheckDelay)
	for {
		vc.checkCycle()
		time.Sleep(versionCheckInterval)
	}
}

// checkCycle retries transient failures a few times, then stays quiet until
// the next interval.
func (vc *VersionChecker) checkCycle() {
	for attempt := 0; attempt < versionMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(versionRetryDelay)
		}
		if vc.checkOnce() {
			return
		}
	}
}

// githubRelease is the subset of the release payload the checker reads.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// checkOnce queries the releases endpoint. It reports true when the cycle is
// settled, either with fresh data or a response retrying will not improve,
// and false on transient failures worth another attempt.
func (vc *VersionChecker) checkOnce() bool {
	ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseEndpoint, nil)
	if err != nil {
		return true
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "murmur-capture/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer util.SafeCloseFunc(resp.Body, "release response body")()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return true
	case resp.StatusCode == http.StatusNotFound:
		// Nothing published yet.
		return true
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		// Rate limited.
		return false
	case resp.StatusCode >= 500:
		return false
	case resp.StatusCode != http.StatusOK:
		return true
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return false
	}
	vc.record(release, resp.Header.Get("ETag"))
	return true
}

// record stores the release tag when it names a published, non-draft
// version.
func (vc *VersionChecker) record(release githubRelease, etag string) {
	if release.Draft || release.Prerelease || release.TagName == "" {
		return
	}
	latest := normalizeVersion(release.TagName)

	vc.mu.Lock()
	changed := latest != vc.latest
	vc.latest = latest
	if etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()

	if changed {
		slog.Info("new release published", "latest", latest, "current", normalizeVersion(Version))
	}
}

// GetInfo returns the current version info for the control surface.
func (vc *VersionChecker) GetInfo() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	// Dev and unversioned builds never prompt for updates.
	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}
	return info
}

// normalizeVersion strips the tag's v prefix and surrounding whitespace.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// canonicalVersion restores the v prefix golang.org/x/mod/semver requires.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// isNewerVersion reports whether latest is strictly newer than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare(canonicalVersion(latest), canonicalVersion(current)) > 0
}
