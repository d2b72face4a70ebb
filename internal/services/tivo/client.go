package tivo

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/icholy/digest"
	"golang.org/x/time/rate"

	"dvrflow/internal/logging"
)

const (
	// Username is the fixed account TiVo devices expect alongside the MAK.
	Username = "tivo"
	// DownloadFormat is appended to every content URL so the device serves
	// the transport stream variant.
	DownloadFormat = "video/x-tivo-mpeg"

	nowPlayingPath = "/TiVoConnect"
)

// ErrUnexpectedFormat reports a NowPlaying document the client cannot read.
var ErrUnexpectedFormat = errors.New("tivo: data received from device was in an unexpected format")

// Recording is one NowPlaying entry that matched a query.
type Recording struct {
	Title        string
	EpisodeTitle string
	URL          string
}

// Query selects recordings by exact title and, optionally, episode title.
type Query struct {
	Title   string
	Episode string
}

type container struct {
	XMLName xml.Name `xml:"TiVoContainer"`
	Details struct {
		TotalItems int `xml:"TotalItems"`
	} `xml:"Details"`
	ItemStart int    `xml:"ItemStart"`
	ItemCount string `xml:"ItemCount"`
	Items     []item `xml:"Item"`
}

type item struct {
	Details *struct {
		Title        string  `xml:"Title"`
		EpisodeTitle *string `xml:"EpisodeTitle"`
	} `xml:"Details"`
	Links struct {
		Content struct {
			URL string `xml:"Url"`
		} `xml:"Content"`
	} `xml:"Links"`
}

// Client lists and downloads recordings from one device.
type Client struct {
	baseURL        string
	transport      *http.Transport
	listClient     *http.Client
	downloadClient *http.Client
	pacer          *rate.Limiter
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the https://<hostname> root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds listing requests and the wait for download headers.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		c.listClient.Timeout = timeout
		c.transport.ResponseHeaderTimeout = timeout
	}
}

// WithDownloadPause spaces consecutive downloads. Zero disables pacing.
func WithDownloadPause(pause time.Duration) Option {
	return func(c *Client) {
		if pause <= 0 {
			c.pacer = nil
			return
		}
		c.pacer = rate.NewLimiter(rate.Every(pause), 1)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for hostname authenticated with mak. The device
// certificate is self-signed, so verification is skipped.
func New(hostname, mak string, opts ...Option) *Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		ResponseHeaderTimeout: 60 * time.Second,
	}
	// The device answers every request with a digest challenge; the
	// transport reuses the last one so later requests go out signed.
	auth := &digest.Transport{Username: Username, Password: mak, Transport: base}
	jar, _ := cookiejar.New(nil)

	client := &Client{
		baseURL:        "https://" + strings.TrimSpace(hostname),
		transport:      base,
		listClient:     &http.Client{Transport: auth, Timeout: 60 * time.Second, Jar: jar},
		downloadClient: &http.Client{Transport: auth, Jar: jar},
		pacer:          rate.NewLimiter(rate.Every(30*time.Second), 1),
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// List walks the NowPlaying container page by page and returns recordings
// whose title equals q.Title. With q.Episode set only the first matching
// episode is returned. A title-only recording without an episode title ends
// the walk when no episode was requested.
func (c *Client) List(ctx context.Context, q Query) ([]Recording, error) {
	if strings.TrimSpace(q.Title) == "" {
		return nil, errors.New("title required")
	}
	var recordings []Recording
	offset := 0
	for {
		page, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		count, err := strconv.Atoi(strings.TrimSpace(page.ItemCount))
		if err != nil {
			return nil, fmt.Errorf("%w: item count %q", ErrUnexpectedFormat, page.ItemCount)
		}
		c.logger.Debug("nowplaying page", logging.Int("offset", offset), logging.Int("items", count))
		if count == 0 {
			return recordings, nil
		}

		for _, it := range page.Items {
			if it.Details == nil || it.Details.Title != q.Title {
				continue
			}
			link, err := downloadLink(it)
			if err != nil {
				return nil, err
			}
			switch {
			case it.Details.EpisodeTitle != nil:
				episode := *it.Details.EpisodeTitle
				if q.Episode != "" && q.Episode != episode {
					continue
				}
				recordings = append(recordings, Recording{Title: q.Title, EpisodeTitle: episode, URL: link})
				if q.Episode != "" {
					return recordings, nil
				}
			case q.Episode == "":
				recordings = append(recordings, Recording{Title: q.Title, URL: link})
				return recordings, nil
			}
		}

		offset += count
		if total := page.Details.TotalItems; total > 0 && offset >= total {
			return recordings, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, offset int) (*container, error) {
	values := url.Values{}
	values.Set("Command", "QueryContainer")
	values.Set("Container", "/NowPlaying")
	values.Set("Recurse", "Yes")
	values.Set("AnchorOffset", strconv.Itoa(offset))
	endpoint := c.baseURL + nowPlayingPath + "?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.listClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query recordings: unexpected status %s", resp.Status)
	}

	var page container
	if err := xml.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
	}
	return &page, nil
}

func downloadLink(it item) (string, error) {
	raw := strings.TrimSpace(it.Links.Content.URL)
	if raw == "" {
		return "", ErrUnexpectedFormat
	}
	return raw + "&Format=" + DownloadFormat, nil
}

// Download streams rec into dest. The body is written to a pending file that
// replaces dest only once the transfer completes, so an interrupted download
// never occupies the final path. Downloads after the first wait for the
// configured pause.
func (c *Client) Download(ctx context.Context, rec Recording, dest string) (int64, error) {
	if rec.URL == "" {
		return 0, errors.New("recording has no download link")
	}
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(rec.URL), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %q: %w", rec.Title, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %q: unexpected status %s", rec.Title, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}
	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	written, err := io.Copy(pending, resp.Body)
	if err != nil {
		return written, fmt.Errorf("download %q: %w", rec.Title, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return written, fmt.Errorf("finalize download: %w", err)
	}
	c.logger.Debug("recording downloaded", logging.String("path", dest), logging.Int64("bytes", written))
	return written, nil
}

// resolve keeps absolute device links and anchors relative ones on baseURL.
func (c *Client) resolve(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return c.baseURL + "/" + strings.TrimLeft(link, "/")
}
