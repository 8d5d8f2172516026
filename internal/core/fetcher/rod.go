package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
)

// DefaultBaseURL is the profile site.
const DefaultBaseURL = "https://x.com"

const (
	defaultLoadTimeout = 15 * time.Second
	defaultHeaderWait  = 10 * time.Second
	readyPollInterval  = 250 * time.Millisecond
)

// RodFetcher renders profiles in Chromium and reads the header metrics.
// It attaches to ControlURL when set, otherwise it launches a browser on
// first use.
type RodFetcher struct {
	ControlURL string
	Headless   bool
	BaseURL    string
	Logger     engine.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRodFetcher returns a fetcher that connects lazily.
func NewRodFetcher(controlURL string, headless bool, baseURL string, logger engine.Logger) *RodFetcher {
	return &RodFetcher{
		ControlURL: strings.TrimSpace(controlURL),
		Headless:   headless,
		BaseURL:    baseURL,
		Logger:     logger,
	}
}

// Fetch opens a page for req.Handle, waits best-effort for the header and
// extracts the metrics. The page is always closed.
func (f *RodFetcher) Fetch(ctx context.Context, req engine.FetchRequest) (core.ProfileResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	browser, err := f.ensureBrowser(ctx)
	if err != nil {
		return core.ProfileResult{}, err
	}

	target, err := f.profileURL(req.Handle)
	if err != nil {
		return core.ProfileResult{}, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return core.ProfileResult{}, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			f.logger().Debug("close page failed", zap.String("key", req.Key), zap.Error(closeErr))
		}
	}()
	page = page.Context(ctx)

	loadTimeout := req.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	if err := page.Timeout(loadTimeout).Navigate(target); err != nil {
		f.logger().Debug("navigation incomplete", zap.String("url", target), zap.Error(err))
	}
	if err := page.Timeout(loadTimeout).WaitLoad(); err != nil {
		f.logger().Debug("page load incomplete", zap.String("url", target), zap.Error(err))
	}
	if ctx.Err() != nil {
		return core.ProfileResult{}, ctx.Err()
	}

	headerWait := req.HeaderWait
	if headerWait <= 0 {
		headerWait = defaultHeaderWait
	}
	if !waitProfileReady(ctx, page, headerWait) {
		f.logger().Debug("profile header not detected", zap.String("key", req.Key))
	}

	var probe rateProbe
	if err := evalInto(page, &probe, rateProbeJS); err != nil {
		f.logger().Debug("rate probe failed", zap.String("key", req.Key), zap.Error(err))
	}

	var raw rawProfile
	if err := evalInto(page, &raw, extractProfileJS, req.Key); err != nil {
		return core.ProfileResult{RateLimited: probe.Limited()}, fmt.Errorf("extract profile: %w", err)
	}
	return buildResult(req.Key, &raw, probe), nil
}

// Close shuts the browser down; a launched browser process is killed.
func (f *RodFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher = nil
	}
	return err
}

func (f *RodFetcher) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		if _, err := f.browser.Version(); err == nil {
			return f.browser, nil
		}
		f.logger().Warn("stale browser connection, reconnecting")
		_ = f.browser.Close()
		f.browser = nil
	}

	controlURL := f.ControlURL
	if controlURL == "" {
		if f.launcher == nil {
			f.launcher = launcher.New().Headless(f.Headless)
		}
		launched, err := f.launcher.Launch()
		if err != nil {
			f.launcher = nil
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = launched
	}

	// The browser outlives any single fetch, so it is not bound to ctx.
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	if ctx.Err() != nil {
		_ = browser.Close()
		return nil, ctx.Err()
	}

	f.browser = browser
	f.logger().Info("browser connected", zap.Bool("launched", f.ControlURL == ""))
	return browser, nil
}

func (f *RodFetcher) profileURL(handle string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(f.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if handle == "" {
		return "", errors.New("empty handle")
	}
	return base + "/" + url.PathEscape(handle), nil
}

func (f *RodFetcher) logger() engine.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// waitProfileReady polls until the header renders, the wait elapses or ctx ends.
func waitProfileReady(ctx context.Context, page *rod.Page, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		res, err := page.Eval(profileReadyJS)
		if err == nil && res != nil && res.Value.Bool() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(readyPollInterval):
		}
	}
	return false
}

func evalInto(page *rod.Page, out any, js string, args ...any) error {
	res, err := page.Eval(js, args...)
	if err != nil {
		return err
	}
	if res == nil {
		return errors.New("script returned nothing")
	}
	data, err := json.Marshal(res.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
