package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"clasutil/config"
	"clasutil/models"
	"clasutil/utils"
)

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9]+`)

// Snapshotter renders dashboard views in headless Chrome and saves them as PNGs.
type Snapshotter struct {
	cfg     *config.Config
	logger  *utils.Logger
	pool    *utils.WorkerPool
	visited *utils.KeySet
	retry   *utils.RetryConfig

	mu    sync.Mutex
	saved []string
	errs  []error
}

// New creates a ready-to-use Snapshotter.
func New(cfg *config.Config, logger *utils.Logger) *Snapshotter {
	return &Snapshotter{
		cfg:     cfg,
		logger:  logger,
		pool:    utils.NewWorkerPool(cfg.MaxConcurrency, time.Duration(cfg.RateLimitMs)*time.Millisecond),
		visited: utils.NewKeySet(),
		retry: &utils.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
	}
}

// Capture renders one PNG per filter set against the dashboard at baseURL and
// returns the written file paths. Duplicate views are captured once.
func (s *Snapshotter) Capture(ctx context.Context, baseURL string, views []models.FilterSet) ([]string, error) {
	if len(views) == 0 {
		views = []models.FilterSet{{}}
	}
	if err := os.MkdirAll(s.cfg.SnapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot: create output dir: %w", err)
	}

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[snapshot] Using browser binary: %q", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	// Start the browser once so tabs share it.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("snapshot: start browser: %w", err)
	}

	for _, view := range views {
		pageURL, err := DashboardURL(baseURL, view)
		if err != nil {
			return nil, err
		}
		if !s.visited.Add(pageURL) {
			s.logger.Debug("[snapshot] Duplicate view skipped: %s", pageURL)
			continue
		}

		target := filepath.Join(s.cfg.SnapshotDir, FileName(view))
		s.pool.Submit(func() {
			if err := s.capturePage(ctx, browserCtx, pageURL, target); err != nil {
				s.logger.Warn("[snapshot] %s failed: %v", pageURL, err)
				s.record("", err)
				return
			}
			s.logger.Info("[snapshot] Saved %s", target)
			s.record(target, nil)
		})
	}
	s.pool.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, errors.Join(s.errs...)
}

func (s *Snapshotter) capturePage(ctx, browserCtx context.Context, pageURL, target string) error {
	var png []byte

	err := s.retry.Do(ctx, "snapshot "+pageURL, nil, func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 30*time.Second)
		defer cancelTimeout()

		return chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitVisible(`h1`, chromedp.ByQuery),
			chromedp.FullScreenshot(&png, 90),
		)
	})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if err := os.WriteFile(target, png, 0644); err != nil {
		return fmt.Errorf("write %q: %w", target, err)
	}
	return nil
}

func (s *Snapshotter) record(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs = append(s.errs, err)
		return
	}
	s.saved = append(s.saved, path)
}

// DashboardURL adds the non-empty filters of view to the dashboard base URL.
func DashboardURL(baseURL string, view models.FilterSet) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("snapshot: parse base url %q: %w", baseURL, err)
	}
	q := u.Query()
	for key, val := range filterParams(view) {
		q.Set(key, val)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FileName derives a stable PNG name for a view, e.g. "dashboard-building-north.png".
func FileName(view models.FilterSet) string {
	parts := []string{"dashboard"}
	for _, key := range []string{"building", "floor", "class_type", "status"} {
		if val, ok := filterParams(view)[key]; ok {
			slug := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(val), "-"), "-")
			parts = append(parts, strings.ReplaceAll(key, "_", "-"), slug)
		}
	}
	return strings.Join(parts, "-") + ".png"
}

func filterParams(view models.FilterSet) map[string]string {
	params := make(map[string]string, 4)
	if view.Building != "" {
		params["building"] = view.Building
	}
	if view.Floor != "" {
		params["floor"] = view.Floor
	}
	if view.ClassType != "" {
		params["class_type"] = view.ClassType
	}
	if view.Status != "" {
		params["status"] = view.Status
	}
	return params
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
