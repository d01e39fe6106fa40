// Package brightdata refreshes creator profiles through the BrightData
// snapshot API: it chunks a list of handles by platform, triggers, polls,
// and downloads vendor snapshots in parallel under a bounded per-platform
// fan-out (see pkg/fnkit.ParMap), and emits fine-grained progress events.
package brightdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/fnkit"
)

// SnapshotClient is the vendor collaborator: trigger a snapshot for a chunk
// of profile URLs, poll its status, and download the resulting rows.
type SnapshotClient interface {
	TriggerSnapshot(ctx context.Context, platform domain.Platform, profileURLs []string) (snapshotID string, err error)
	SnapshotStatus(ctx context.Context, snapshotID string) (status string, err error) // "running" | "ready" | "failed"
	DownloadSnapshot(ctx context.Context, snapshotID string) ([]map[string]any, error)
}

// Config bounds the worker's concurrency and chunking.
type Config struct {
	MaxURLsPerRequest int
	MaxWorkers        int
	PollInterval      time.Duration
	MaxRetryAttempts  int
}

func (c Config) withDefaults() Config {
	if c.MaxURLsPerRequest <= 0 {
		c.MaxURLsPerRequest = 50
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 5
	}
	return c
}

// ProgressFunc receives one named event with a JSON-able payload.
type ProgressFunc func(stage string, data map[string]any)

// ProfileResult is one handle's outcome from a refresh.
type ProfileResult struct {
	Handle          domain.Handle
	Success         bool
	ProfileImageURL string
	Warning         string
	Record          map[string]any
}

// BatchResult aggregates a refresh across all handles.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
	Results    []ProfileResult
}

// Worker executes vendor refreshes.
type Worker struct {
	client SnapshotClient
	cfg    Config
}

func New(client SnapshotClient, cfg Config) *Worker {
	return &Worker{client: client, cfg: cfg.withDefaults()}
}

// Refresh chunks handles by platform, fans out up to MaxWorkers chunks in
// parallel per platform (platforms processed in deterministic alphabetical
// order), and aggregates results.
func (w *Worker) Refresh(ctx context.Context, handles []domain.Handle, progress ProgressFunc) (*BatchResult, error) {
	if progress == nil {
		progress = func(string, map[string]any) {}
	}
	if len(handles) == 0 {
		return nil, apperr.Invalid("no handles supplied")
	}

	byPlatform := make(map[domain.Platform][]domain.Handle)
	for _, h := range handles {
		h.Username = domain.NormalizeUsername(h.Username)
		if h.Username == "" {
			continue
		}
		byPlatform[h.Platform] = append(byPlatform[h.Platform], h)
	}
	if len(byPlatform) == 0 {
		return nil, apperr.Invalid("zero valid handles")
	}

	platforms := make([]string, 0, len(byPlatform))
	for p := range byPlatform {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)

	agg := &BatchResult{}
	for _, ps := range platforms {
		platform := domain.Platform(ps)
		results, err := w.refreshPlatform(ctx, platform, byPlatform[platform], progress)
		if err != nil {
			return nil, err
		}
		agg.Results = append(agg.Results, results...)
	}

	agg.Total = len(agg.Results)
	for _, r := range agg.Results {
		if r.Success {
			agg.Successful++
		} else {
			agg.Failed++
		}
	}
	return agg, nil
}

func (w *Worker) refreshPlatform(ctx context.Context, platform domain.Platform, handles []domain.Handle, progress ProgressFunc) ([]ProfileResult, error) {
	chunks := fnkit.Chunk(handles, w.cfg.MaxURLsPerRequest)
	progress("PLATFORM_STARTED", map[string]any{"platform": platform, "chunks": len(chunks), "total_profiles": len(handles)})

	type indexedChunk struct {
		index int
		items []domain.Handle
	}
	type chunkOutcome struct {
		results    []ProfileResult
		snapshotID string
	}
	indexed := make([]indexedChunk, len(chunks))
	for i, c := range chunks {
		indexed[i] = indexedChunk{index: i, items: c}
	}

	completed := make(chan struct{}, len(chunks))
	outcomes, err := fnkit.ParMap(ctx, indexed, w.cfg.MaxWorkers, func(ctx context.Context, ic indexedChunk) (chunkOutcome, error) {
		progress("CHUNK_STARTED", map[string]any{
			"platform": platform, "chunk_index": ic.index, "chunk_size": len(ic.items), "total_chunks": len(chunks),
		})
		results, snapshotID, err := w.refreshChunk(ctx, platform, ic.items)
		completed <- struct{}{}
		progress("CHUNK_FINISHED", map[string]any{
			"platform": platform, "chunk_index": ic.index, "completed_chunks": len(completed), "total_chunks": len(chunks), "snapshot_id": snapshotID,
		})
		if err != nil {
			// A chunk failure aborts that chunk only; synthesize failed
			// results for every handle in it so the batch still accounts
			// for every input handle.
			results = make([]ProfileResult, len(ic.items))
			for i, h := range ic.items {
				results[i] = ProfileResult{Handle: h, Success: false, Warning: err.Error()}
			}
		}
		for _, r := range results {
			if r.Success {
				progress("BRIGHTDATA_PROFILE_COMPLETED", map[string]any{"platform": platform, "handle": r.Handle.Username})
			} else {
				progress("BRIGHTDATA_PROFILE_FAILED", map[string]any{"platform": platform, "handle": r.Handle.Username, "warning": r.Warning})
			}
		}
		return chunkOutcome{results: results, snapshotID: snapshotID}, nil
	})
	if err != nil {
		return nil, err
	}

	var snapshots []string
	var out []ProfileResult
	for _, oc := range outcomes {
		out = append(out, oc.results...)
		if oc.snapshotID != "" {
			snapshots = append(snapshots, oc.snapshotID)
		}
	}
	progress("PLATFORM_FINISHED", map[string]any{"platform": platform, "snapshots": snapshots})
	return out, nil
}

func (w *Worker) refreshChunk(ctx context.Context, platform domain.Platform, handles []domain.Handle) ([]ProfileResult, string, error) {
	urls := make([]string, len(handles))
	for i, h := range handles {
		urls[i] = domain.ProfileURL(platform, h.Username)
	}

	snapshotID, err := fnkit.Do(ctx, w.cfg.MaxRetryAttempts, isRetriable, func(ctx context.Context) (string, error) {
		return w.client.TriggerSnapshot(ctx, platform, urls)
	})
	if err != nil {
		return nil, "", fmt.Errorf("trigger snapshot: %w", err)
	}

	for {
		status, err := w.client.SnapshotStatus(ctx, snapshotID)
		if err != nil {
			return nil, snapshotID, fmt.Errorf("snapshot status: %w", err)
		}
		if status == "ready" {
			break
		}
		if status == "failed" {
			return nil, snapshotID, fmt.Errorf("%w: snapshot %s", apperr.ErrVendorSnapshotFailed, snapshotID)
		}
		select {
		case <-ctx.Done():
			return nil, snapshotID, ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}

	rows, err := w.client.DownloadSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, snapshotID, fmt.Errorf("download snapshot: %w", err)
	}

	byKey := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		for _, key := range candidateKeys(row) {
			byKey[key] = row
		}
	}

	results := make([]ProfileResult, len(handles))
	for i, h := range handles {
		key := strings.ToLower(h.Username)
		row, ok := byKey[key]
		if !ok {
			for _, variant := range urlVariants(domain.ProfileURL(platform, h.Username)) {
				if r, found := byKey[variant]; found {
					row, ok = r, true
					break
				}
			}
		}
		if !ok {
			results[i] = ProfileResult{Handle: h, Success: false, Warning: "not returned"}
			continue
		}
		if w := firstString(row["warning"], row["warning_code"]); w != "" {
			results[i] = ProfileResult{Handle: h, Success: false, Warning: w, Record: row}
			continue
		}
		img := firstString(row["profile_image_url"], row["profile_pic_url"], row["avatar"])
		results[i] = ProfileResult{Handle: h, Success: true, ProfileImageURL: img, Record: row}
	}
	return results, snapshotID, nil
}

func candidateKeys(row map[string]any) []string {
	var keys []string
	if u := firstString(row["account"], row["username"]); u != "" {
		keys = append(keys, strings.ToLower(u))
	}
	if u := firstString(row["profile_url"], row["url"]); u != "" {
		keys = append(keys, urlVariants(u)...)
	}
	return keys
}

func urlVariants(u string) []string {
	u = strings.ToLower(strings.TrimSuffix(u, "/"))
	variants := []string{u}
	if strings.Contains(u, "://www.") {
		variants = append(variants, strings.Replace(u, "://www.", "://", 1))
	} else if strings.Contains(u, "://") {
		parts := strings.SplitN(u, "://", 2)
		variants = append(variants, parts[0]+"://www."+parts[1])
	}
	return variants
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func isRetriable(err error) bool {
	// Network errors and vendor 429/5xx are retriable; a reported
	// failed/expired snapshot and malformed-input errors are not.
	return errors.Is(err, apperr.ErrExternalTransient)
}

// FetchSingle is equivalent to a one-handle refresh; same success/failure
// shape as Refresh.
func (w *Worker) FetchSingle(ctx context.Context, username string, platform domain.Platform) (*ProfileResult, error) {
	batch, err := w.Refresh(ctx, []domain.Handle{{Username: username, Platform: platform}}, nil)
	if err != nil {
		return nil, err
	}
	if len(batch.Results) == 0 {
		return nil, apperr.NotFound("no result for %s", username)
	}
	return &batch.Results[0], nil
}

// ValidateSSRF is the URL-level half of the image-fetch SSRF guard: the
// scheme must be http/https and the host must match the allow-list. The
// address-level half (rejecting hosts that resolve to private, loopback,
// link-local, multicast, or reserved space, re-checked on every redirect
// hop) lives in ImageFetcher, whose dialer is the only place a resolved
// address is actually observable.
func ValidateSSRF(rawURL string, allowedHosts []string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable url", apperr.ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", apperr.ErrInvalidInput, u.Scheme)
	}
	for _, pattern := range allowedHosts {
		if hostMatches(u.Hostname(), pattern) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q not in allow-list", apperr.ErrInvalidInput, u.Hostname())
}

func hostMatches(host, pattern string) bool {
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return host == pattern
}
