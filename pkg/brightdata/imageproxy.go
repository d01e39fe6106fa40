package brightdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/creatorindex/creatord/pkg/apperr"
)

// maxImageBytes caps how much of an upstream image body the proxy will
// buffer; vendor CDN avatars are well under this.
const maxImageBytes = 10 << 20

// maxImageRedirects bounds the redirect chain on an image fetch; every hop
// is re-validated before it is followed.
const maxImageRedirects = 5

// ImageFetcher proxies profile-image downloads from the vendor's CDN on
// behalf of browser clients that cannot fetch the signed URLs directly.
// Every fetch is SSRF-guarded twice: ValidateSSRF vets the URL (scheme +
// host allow-list) before the request and again on every redirect hop, and
// the transport's dialer resolves the host itself and refuses to connect
// to any address that is not publicly routable, so a DNS answer pointing
// an allow-listed name at internal space still cannot be reached.
type ImageFetcher struct {
	allowedHosts []string
	client       *http.Client
}

func NewImageFetcher(allowedHosts []string, timeout time.Duration) *ImageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &ImageFetcher{allowedHosts: allowedHosts}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if err := validateAddress(ip); err != nil {
					return nil, fmt.Errorf("refusing to dial %s: %w", host, err)
				}
			}
			// Dial a vetted address directly rather than re-resolving the
			// name, so a second DNS answer cannot swap in a different one.
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.Unmap().String(), port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("no addresses for %s", host)
			}
			return nil, lastErr
		},
	}

	f.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return errors.New("too many redirects")
			}
			return ValidateSSRF(req.URL.String(), f.allowedHosts)
		},
	}
	return f
}

// Fetch downloads one image after vetting its URL, returning the body and
// the upstream Content-Type. Upstream 429/5xx map to the transient error
// class, other 4xx to the permanent one.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (body []byte, contentType string, err error) {
	if err := ValidateSSRF(rawURL, f.allowedHosts); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrExternalTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", fmt.Errorf("%w: status %d", apperr.ErrExternalTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("%w: status %d", apperr.ErrExternalPermanent, resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading image body: %v", apperr.ErrExternalTransient, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// validateAddress rejects any resolved address that is not publicly
// routable: private, loopback, link-local, multicast, unspecified, and the
// reserved IPv4 240.0.0.0/4 block.
func validateAddress(ip netip.Addr) error {
	addr := ip.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified():
		return fmt.Errorf("%w: address %s is not publicly routable", apperr.ErrInvalidInput, addr)
	}
	if addr.Is4() && addr.As4()[0] >= 240 {
		return fmt.Errorf("%w: address %s is in reserved space", apperr.ErrInvalidInput, addr)
	}
	return nil
}
