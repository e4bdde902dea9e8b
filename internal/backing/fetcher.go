package backing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// MaxDownloadBytes caps a single backing track download.
const MaxDownloadBytes = 64 << 20

// Fetcher downloads and decodes backing tracks. Decoded buffers are cached
// by URL and shared read-only between sessions.
type Fetcher struct {
	http   *http.Client
	logger *zap.Logger

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*audio.Buffer
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		cache:  make(map[string]*audio.Buffer),
	}
}

// Fetch returns the decoded track at url. Concurrent fetches of the same URL
// share one download, which is detached from any single caller: a caller
// whose ctx ends gives up waiting without failing the others. Every failure
// wraps ErrInstrumentalUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*audio.Buffer, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no backing track url", apperrors.ErrInstrumentalUnavailable)
	}

	f.mu.Lock()
	buf, ok := f.cache[url]
	f.mu.Unlock()
	if ok {
		return buf, nil
	}

	// The http client's timeout bounds the detached download.
	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(url, func() (interface{}, error) {
		buf, err := f.download(detached, url)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cache[url] = buf
		f.mu.Unlock()
		return buf, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInstrumentalUnavailable, ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInstrumentalUnavailable, res.Err)
	}
	buf = res.Val.(*audio.Buffer)

	if !res.Shared {
		f.logger.Info("backing track cached",
			zap.String("url", url),
			zap.Duration("duration", buf.Duration()),
			zap.Int("sample_rate", buf.SampleRate))
	}
	return buf, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*audio.Buffer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download backing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download backing: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read backing: %w", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, fmt.Errorf("backing track exceeds %d bytes", MaxDownloadBytes)
	}

	f.logger.Debug("decoding backing track",
		zap.String("url", url),
		zap.String("format", string(audio.DetectFormat(data))),
		zap.Int("bytes", len(data)))

	buf, err := audio.DecodeContainer(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("decode backing: %w", err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("decode backing: empty audio")
	}
	return buf, nil
}
