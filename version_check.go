package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
	"golang.org/x/mod/semver"
)

const (
	releaseURL = "https://api.github.com/repos/oszuidwest/zwfm-soundmeter/releases/latest"

	releasePollInterval = 24 * time.Hour
	releaseFirstPoll    = 30 * time.Second
	releaseTimeout      = 30 * time.Second
	releaseAttempts     = 3
	releaseRetryMin     = time.Minute
	releaseRetryMax     = 10 * time.Minute
)

// VersionChecker polls the release feed and tells the dashboard when a
// newer build is out. It is safe for concurrent use.
type VersionChecker struct {
	url    string
	client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewVersionChecker starts polling in the background.
func NewVersionChecker() *VersionChecker {
	vc := newVersionChecker(releaseURL)
	go vc.poll()
	return vc
}

func newVersionChecker(url string) *VersionChecker {
	return &VersionChecker{
		url:    url,
		client: &http.Client{Timeout: releaseTimeout},
		stop:   make(chan struct{}),
	}
}

// Stop ends polling. Repeated calls are no-ops.
func (vc *VersionChecker) Stop() {
	vc.stopOnce.Do(func() { close(vc.stop) })
}

// wait sleeps for d and reports false if the checker was stopped meanwhile.
func (vc *VersionChecker) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-vc.stop:
		return false
	}
}

func (vc *VersionChecker) poll() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("version checker panicked", "panic", r)
		}
	}()

	delay := releaseFirstPoll
	for vc.wait(delay) {
		vc.checkRound()
		delay = releasePollInterval
	}
}

// checkRound tries a few times with growing pauses before giving up until
// the next poll.
func (vc *VersionChecker) checkRound() {
	backoff := util.NewBackoff(releaseRetryMin, releaseRetryMax)
	for range releaseAttempts {
		if vc.check() {
			return
		}
		if backoff.Attempts() == releaseAttempts-1 || !vc.wait(backoff.Next()) {
			return
		}
	}
}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check performs one request and reports whether the round is settled.
// A false result means the failure is transient and worth retrying.
func (vc *VersionChecker) check() bool {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	release, etag, settled, err := vc.fetch(ctx)
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return settled
	}
	if release == nil || release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()
	return true
}

// fetch returns the published release, or nil when there is nothing new.
// settled tells the caller whether an error is final for this round.
func (vc *VersionChecker) fetch(ctx context.Context) (release *githubRelease, etag string, settled bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.url, http.NoBody)
	if err != nil {
		return nil, "", true, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "zwfm-soundmeter/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
	case code == http.StatusNotModified, code == http.StatusNotFound:
		// Unchanged, or no release published yet.
		return nil, "", true, nil
	case code == http.StatusForbidden, code == http.StatusTooManyRequests, code >= 500:
		return nil, "", false, fmt.Errorf("release feed returned %d", code)
	default:
		return nil, "", true, fmt.Errorf("release feed returned %d", code)
	}

	var r githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, "", false, fmt.Errorf("decode release: %w", err)
	}
	return &r, resp.Header.Get("ETag"), true, nil
}

// Info returns the running build and the newest known release.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(latest, current)
	}
	return info
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion compares two tags with or without a leading v.
func isNewerVersion(latest, current string) bool {
	return semver.Compare("v"+normalizeVersion(latest), "v"+normalizeVersion(current)) > 0
}
