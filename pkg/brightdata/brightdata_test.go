package brightdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
)

// stubClient answers the snapshot lifecycle in memory, recording every
// trigger so tests can assert on chunking.
type stubClient struct {
	mu        sync.Mutex
	triggered [][]string
	rowsFor   func(profileURLs []string) []map[string]any
	failEvery int // every Nth trigger reports a failed snapshot
}

func (s *stubClient) TriggerSnapshot(_ context.Context, _ domain.Platform, profileURLs []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggered = append(s.triggered, profileURLs)
	id := "snap-" + string(rune('0'+len(s.triggered)))
	return id, nil
}

func (s *stubClient) SnapshotStatus(_ context.Context, snapshotID string) (string, error) {
	if s.failEvery > 0 {
		n := int(snapshotID[len(snapshotID)-1] - '0')
		if n%s.failEvery == 0 {
			return "failed", nil
		}
	}
	return "ready", nil
}

func (s *stubClient) DownloadSnapshot(_ context.Context, snapshotID string) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int(snapshotID[len(snapshotID)-1]-'0') - 1
	if s.rowsFor == nil || n < 0 || n >= len(s.triggered) {
		return nil, nil
	}
	return s.rowsFor(s.triggered[n]), nil
}

func rowsEchoingHandles(profileURLs []string) []map[string]any {
	rows := make([]map[string]any, len(profileURLs))
	for i, u := range profileURLs {
		rows[i] = map[string]any{
			"url":               u,
			"profile_image_url": u + "/pic.jpg",
		}
	}
	return rows
}

func handles(n int) []domain.Handle {
	out := make([]domain.Handle, n)
	for i := range out {
		out[i] = domain.Handle{Username: "creator" + string(rune('a'+i)), Platform: domain.PlatformInstagram}
	}
	return out
}

func TestRefreshChunksAndAggregates(t *testing.T) {
	client := &stubClient{rowsFor: rowsEchoingHandles}
	w := New(client, Config{MaxURLsPerRequest: 3, PollInterval: time.Millisecond})

	var mu sync.Mutex
	events := map[string]int{}
	batch, err := w.Refresh(context.Background(), handles(7), func(stage string, _ map[string]any) {
		mu.Lock()
		events[stage]++
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 7, batch.Total)
	assert.Equal(t, 7, batch.Successful)
	assert.Equal(t, 0, batch.Failed)

	// 7 handles at chunk size 3 -> chunks of [3,3,1].
	require.Len(t, client.triggered, 3)
	sizes := map[int]int{}
	for _, chunk := range client.triggered {
		sizes[len(chunk)]++
	}
	assert.Equal(t, map[int]int{3: 2, 1: 1}, sizes)

	// Chunk start/finish events pair up; platform events bracket them.
	assert.Equal(t, 1, events["PLATFORM_STARTED"])
	assert.Equal(t, 1, events["PLATFORM_FINISHED"])
	assert.Equal(t, 3, events["CHUNK_STARTED"])
	assert.Equal(t, 3, events["CHUNK_FINISHED"])
	assert.Equal(t, 7, events["BRIGHTDATA_PROFILE_COMPLETED"])
}

func TestRefreshStripsAtPrefixAndExtractsImage(t *testing.T) {
	client := &stubClient{rowsFor: rowsEchoingHandles}
	w := New(client, Config{PollInterval: time.Millisecond})

	batch, err := w.Refresh(context.Background(), []domain.Handle{
		{Username: "@alice", Platform: domain.PlatformInstagram},
	}, nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)

	r := batch.Results[0]
	assert.Equal(t, "alice", r.Handle.Username)
	assert.True(t, r.Success)
	assert.Equal(t, "https://www.instagram.com/alice/pic.jpg", r.ProfileImageURL)
}

func TestRefreshWarningRowsAreFailures(t *testing.T) {
	client := &stubClient{rowsFor: func(urls []string) []map[string]any {
		rows := rowsEchoingHandles(urls)
		rows[0]["warning"] = "account not found"
		return rows
	}}
	w := New(client, Config{PollInterval: time.Millisecond})

	batch, err := w.Refresh(context.Background(), handles(2), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Successful)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, "account not found", batch.Results[0].Warning)
}

func TestRefreshMissingRowIsNotReturned(t *testing.T) {
	client := &stubClient{rowsFor: func(urls []string) []map[string]any {
		return rowsEchoingHandles(urls[:1])
	}}
	w := New(client, Config{PollInterval: time.Millisecond})

	batch, err := w.Refresh(context.Background(), handles(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Successful)
	assert.Equal(t, 2, batch.Failed)
	assert.Equal(t, "not returned", batch.Results[1].Warning)
}

func TestRefreshChunkFailureDoesNotAbortOthers(t *testing.T) {
	client := &stubClient{rowsFor: rowsEchoingHandles, failEvery: 2}
	w := New(client, Config{MaxURLsPerRequest: 2, MaxWorkers: 1, PollInterval: time.Millisecond})

	batch, err := w.Refresh(context.Background(), handles(4), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, batch.Total)
	assert.Equal(t, 2, batch.Successful)
	assert.Equal(t, 2, batch.Failed)
}

func TestRefreshRejectsEmptyInput(t *testing.T) {
	w := New(&stubClient{}, Config{})
	_, err := w.Refresh(context.Background(), nil, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = w.Refresh(context.Background(), []domain.Handle{{Username: "@"}}, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFetchSingleMatchesRefreshShape(t *testing.T) {
	client := &stubClient{rowsFor: rowsEchoingHandles}
	w := New(client, Config{PollInterval: time.Millisecond})

	r, err := w.FetchSingle(context.Background(), "alice", domain.PlatformTikTok)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "alice", r.Handle.Username)
}

func TestValidateSSRF(t *testing.T) {
	allowed := []string{"*.brightdata.com", "cdn.example.com"}

	assert.NoError(t, ValidateSSRF("https://data.brightdata.com/img.jpg", allowed))
	assert.NoError(t, ValidateSSRF("http://cdn.example.com/a.png", allowed))

	assert.Error(t, ValidateSSRF("ftp://data.brightdata.com/x", allowed))
	assert.Error(t, ValidateSSRF("https://evil.example.net/x", allowed))
	err := ValidateSSRF("https://cdn.example.com.evil.net/x", allowed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestValidateAddressRejectsNonRoutableSpace(t *testing.T) {
	rejected := []string{
		"127.0.0.1",       // loopback
		"10.0.0.1",        // private
		"192.168.1.5",     // private
		"172.16.0.9",      // private
		"169.254.169.254", // link-local (cloud metadata)
		"0.0.0.0",         // unspecified
		"224.0.0.1",       // multicast
		"240.0.0.1",       // reserved
		"255.255.255.255", // reserved/broadcast
		"::1",             // v6 loopback
		"fe80::1",         // v6 link-local
		"fd00::1",         // v6 unique-local
		"ff02::1",         // v6 multicast
		"::ffff:127.0.0.1", // v4-mapped loopback
	}
	for _, raw := range rejected {
		err := validateAddress(netip.MustParseAddr(raw))
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, raw)
	}

	for _, raw := range []string{"93.184.216.34", "2606:2800:220:1:248:1893:25c8:1946"} {
		assert.NoError(t, validateAddress(netip.MustParseAddr(raw)), raw)
	}
}

func TestImageFetcherBlocksAllowListedHostResolvingToLoopback(t *testing.T) {
	// The URL-level check passes (host is allow-listed), but the dialer
	// must still refuse: the server sits on a loopback address.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("should never be reached"))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	host = host[:strings.IndexByte(host, ':')]
	f := NewImageFetcher([]string{host}, time.Second)

	_, _, err := f.Fetch(context.Background(), srv.URL+"/avatar.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not publicly routable")
}

func TestImageFetcherRejectsDisallowedURLBeforeDialing(t *testing.T) {
	f := NewImageFetcher([]string{"cdn.brightdata.com"}, time.Second)
	_, _, err := f.Fetch(context.Background(), "https://evil.example.net/a.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestImageFetcherRevalidatesRedirectHops(t *testing.T) {
	f := NewImageFetcher([]string{"cdn.brightdata.com"}, time.Second)

	first, err := http.NewRequest(http.MethodGet, "https://cdn.brightdata.com/a.png", nil)
	require.NoError(t, err)

	// A redirect into a host outside the allow-list is refused.
	hop, err := http.NewRequest(http.MethodGet, "https://internal.service.local/secret", nil)
	require.NoError(t, err)
	err = f.client.CheckRedirect(hop, []*http.Request{first})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// A redirect that stays on the allow-list is followed.
	hop, err = http.NewRequest(http.MethodGet, "https://cdn.brightdata.com/b.png", nil)
	require.NoError(t, err)
	assert.NoError(t, f.client.CheckRedirect(hop, []*http.Request{first}))

	// The chain length is bounded.
	via := make([]*http.Request, maxImageRedirects)
	for i := range via {
		via[i] = first
	}
	err = f.client.CheckRedirect(hop, via)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
}
