package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
	"go.uber.org/zap"
)

var (
	_ timesheet.Source = (*FileSource)(nil)
	_ timesheet.Source = (*HTTPSource)(nil)
)

// ErrNoCredentials is returned when the provider has no token to offer.
var ErrNoCredentials = errors.New("no scheduling API credentials")

// =============================================================================
// FILE SOURCE - Exported batches on disk
// =============================================================================

// FileSource reads a saved payload. The file is treated as the full remote
// state; Fetch narrows it to the requested window.
type FileSource struct {
	Path     string
	Location *time.Location
}

func (s *FileSource) Fetch(_ context.Context, window generic.Period) (timesheet.SyncInput, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return timesheet.SyncInput{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return timesheet.SyncInput{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	in := p.InWindow(window, s.Location).Input(s.Location)
	in.Window = &window
	return in, nil
}

// =============================================================================
// HTTP SOURCE - Scheduling API
// =============================================================================

// CredentialsProvider supplies the bearer token for each request. Token
// storage and refresh live behind it.
type CredentialsProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token from configuration.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredentials
	}
	return string(t), nil
}

// HTTPSource queries GET {BaseURL}/times?start=YYYY-MM-DD&end=YYYY-MM-DD.
// The end date is exclusive on the wire, so the window's last day is
// requested as end = last day + 1.
type HTTPSource struct {
	BaseURL     string
	Credentials CredentialsProvider
	Location    *time.Location
	Client      *http.Client
	Logger      *zap.Logger
}

// NewHTTPSource creates a source with a bounded client timeout.
func NewHTTPSource(baseURL string, creds CredentialsProvider, loc *time.Location, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSource{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Credentials: creds,
		Location:    loc,
		Client:      &http.Client{Timeout: timeout},
		Logger:      logger,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, window generic.Period) (timesheet.SyncInput, error) {
	token, err := s.Credentials.Token(ctx)
	if err != nil {
		return timesheet.SyncInput{}, fmt.Errorf("scheduling API token: %w", err)
	}

	q := url.Values{}
	q.Set("start", window.Start.String())
	q.Set("end", window.End.AddDays(1).String())
	endpoint := s.BaseURL + "/times?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return timesheet.SyncInput{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return timesheet.SyncInput{}, fmt.Errorf("GET %s: %w", s.BaseURL+"/times", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return timesheet.SyncInput{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	p, err := Decode(resp.Body)
	if err != nil {
		return timesheet.SyncInput{}, err
	}
	s.logger().Debug("scheduling API responded",
		zap.String("window", window.String()),
		zap.Int("times", len(p.Times)),
		zap.Duration("took", time.Since(started)),
	)

	in := p.Input(s.Location)
	in.Window = &window
	return in, nil
}

func (s *HTTPSource) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// StatusError is a non-200 response from the scheduling API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scheduling API returned %d: %s", e.Code, e.Body)
}
