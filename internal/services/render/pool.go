// -----------------------------------------------------------------------
// Render Pool - pooled headless-Chrome contexts for JS-required sources
// -----------------------------------------------------------------------

package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultWaitTime   = 3 * time.Second
	shutdownBudget    = 30 * time.Second
	startupProbeLimit = 30 * time.Second
)

// Pool manages headless browser contexts with round-robin allocation. A
// semaphore bounds in-flight renders at the pool size so two renders never
// share a browser context.
type Pool struct {
	cfg    common.RenderConfig
	logger arbor.ILogger

	mu               sync.Mutex
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	currentIndex     int
	initialized      bool

	sem chan struct{}
}

// NewPool creates an uninitialized pool. Call Init before the first Render.
func NewPool(cfg common.RenderConfig, logger arbor.ILogger) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = defaultWaitTime
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.PoolSize),
	}
}

// Init launches the browser instances. Each instance must pass a startup
// probe (about:blank navigate plus title read) before it joins the pool;
// the pool runs degraded when some but not all instances start.
func (p *Pool) Init(userAgent string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("render pool already initialized")
	}

	created := 0
	var lastErr error
	for i := 0; i < p.cfg.PoolSize; i++ {
		if err := p.createInstance(i, userAgent); err != nil {
			lastErr = err
			p.logger.Warn().
				Str(common.FieldCategory, common.CategoryScrape).
				Err(err).
				Int("browser_index", i).
				Msg("Failed to create browser instance")
			continue
		}
		created++
	}

	if created == 0 {
		p.cleanupLocked()
		return fmt.Errorf("no browser instances could be created: %w", lastErr)
	}
	if created < p.cfg.PoolSize {
		p.logger.Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Int("requested", p.cfg.PoolSize).
			Int("created", created).
			Msg("Render pool running with fewer browsers than requested")
		p.sem = make(chan struct{}, created)
	}

	p.initialized = true
	p.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionStart).
		Int("browsers", created).
		Bool("headless", p.cfg.Headless).
		Msg("Render pool initialized")
	return nil
}

func (p *Pool) createInstance(index int, userAgent string) error {
	start := time.Now()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	probeCtx, probeCancel := context.WithTimeout(browserCtx, startupProbeLimit)
	defer probeCancel()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("startup navigate failed: %w", err)
	}
	var title string
	if err := chromedp.Run(probeCtx, chromedp.Title(&title)); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("startup probe failed: %w", err)
	}

	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)

	p.logger.Debug().
		Str(common.FieldCategory, common.CategoryScrape).
		Int("browser_index", index).
		Dur("startup_time", time.Since(start)).
		Msg("Browser instance ready")
	return nil
}

// cleanupLocked cancels every context. Callers hold the mutex.
func (p *Pool) cleanupLocked() {
	for _, cancel := range p.browserCancels {
		cancel()
	}
	for _, cancel := range p.allocatorCancels {
		cancel()
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
}

func (p *Pool) nextBrowser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, fmt.Errorf("render pool not initialized")
	}
	if len(p.browsers) == 0 {
		return nil, fmt.Errorf("no browser instances available")
	}

	index := p.currentIndex % len(p.browsers)
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)
	return p.browsers[index], nil
}

// Render loads the page, waits for JavaScript, and captures the DOM. A
// selector that never appears on an otherwise loaded page yields status
// partial together with the captured HTML.
func (p *Pool) Render(ctx context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	browserCtx, err := p.nextBrowser()
	if err != nil {
		return nil, err
	}
	if err := browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser context cancelled: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	// Stop waiting when the caller gives up, not only on our own deadline.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	result := &interfaces.RenderResult{Status: interfaces.RenderStatusOK}
	start := time.Now()

	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		result.Status = interfaces.RenderStatusError
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("enable network domain: %w", err)
	}

	var htmlContent, finalURL string
	var statusCode int64 = 200

	err = chromedp.Run(runCtx,
		chromedp.Navigate(req.URL),
		chromedp.Sleep(p.cfg.WaitTime),
	)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			result.Status = interfaces.RenderStatusTimeout
			result.Errors = append(result.Errors, fmt.Sprintf("navigation timed out after %s", timeout))
			return result, fmt.Errorf("render timed out: %s", req.URL)
		}
		result.Status = interfaces.RenderStatusError
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	if req.WaitForSelector != "" {
		if err := p.waitForSelector(runCtx, req.WaitForSelector); err != nil {
			result.Status = interfaces.RenderStatusPartial
			result.Errors = append(result.Errors,
				fmt.Sprintf("selector %q did not appear: %v", req.WaitForSelector, err))
		}
	}

	err = chromedp.Run(runCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &htmlContent),
		chromedp.Evaluate(`window.performance?.getEntriesByType?.('navigation')?.[0]?.responseStatus || 200`, &statusCode),
	)
	if err != nil {
		result.Status = interfaces.RenderStatusError
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("capture %s: %w", req.URL, err)
	}
	if htmlContent == "" {
		result.Status = interfaces.RenderStatusError
		result.Errors = append(result.Errors, "browser returned empty document")
		return result, fmt.Errorf("empty HTML from %s", req.URL)
	}

	if p.cfg.MaxBodySize > 0 && len(htmlContent) > p.cfg.MaxBodySize {
		htmlContent = htmlContent[:p.cfg.MaxBodySize]
	}
	if statusCode >= 400 {
		result.Errors = append(result.Errors, fmt.Sprintf("document response status %d", statusCode))
	}

	result.FinalURL = finalURL
	result.HTML = htmlContent

	p.logger.Debug().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionFetch).
		Str("url", req.URL).
		Str("status", string(result.Status)).
		Int("bytes", len(htmlContent)).
		Dur("elapsed", time.Since(start)).
		Msg("Page rendered")
	return result, nil
}

// waitForSelector waits for the selector with a slice of the remaining
// budget so a missing selector cannot eat the whole render timeout.
func (p *Pool) waitForSelector(runCtx context.Context, selector string) error {
	budget := p.cfg.WaitTime * 2
	if deadline, ok := runCtx.Deadline(); ok {
		if remaining := time.Until(deadline) / 2; remaining < budget {
			budget = remaining
		}
	}
	if budget <= 0 {
		return context.DeadlineExceeded
	}

	waitCtx, cancel := context.WithTimeout(runCtx, budget)
	defer cancel()
	return chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Shutdown cancels every browser and allocator context. Cleanup is bounded;
// a hung browser is force-cancelled after the budget expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	count := len(p.browsers)

	done := make(chan struct{})
	go func() {
		for _, cancel := range p.browserCancels {
			cancel()
		}
		for _, cancel := range p.allocatorCancels {
			cancel()
		}
		close(done)
	}()

	budget := shutdownBudget
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}

	select {
	case <-done:
	case <-time.After(budget):
		p.logger.Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Int("browsers", count).
			Msg("Render pool shutdown timed out")
	}

	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
	p.initialized = false

	p.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionStop).
		Int("browsers", count).
		Msg("Render pool shut down")
	return nil
}

// Stats reports pool state for the status endpoint.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"pool_size":   p.cfg.PoolSize,
		"active":      len(p.browsers),
		"initialized": p.initialized,
		"in_flight":   len(p.sem),
	}
}

// Disabled is the renderer used when rendering is turned off in config.
// Every Render call fails fast with a clear reason.
type Disabled struct{}

// Render always fails; sources that require JavaScript cannot run.
func (Disabled) Render(_ context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	return &interfaces.RenderResult{
		Status: interfaces.RenderStatusError,
		Errors: []string{"rendering is disabled"},
	}, fmt.Errorf("rendering is disabled (requested %s)", strings.TrimSpace(req.URL))
}

// Shutdown is a no-op.
func (Disabled) Shutdown(context.Context) error { return nil }
