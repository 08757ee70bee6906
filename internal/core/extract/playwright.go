package extract

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"contentscore/internal/logger"
)

type PlaywrightOptions struct {
	Headless bool
	// Timeout bounds a single navigation.
	Timeout time.Duration
	// Settle is how long to wait for client-side rendering after load.
	Settle time.Duration
}

// PlaywrightRenderer renders pages in headless Chromium, retrying with a
// different header strategy when a page is blocked.
type PlaywrightRenderer struct {
	opts PlaywrightOptions
	log  *logger.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywrightRenderer(opts PlaywrightOptions) *PlaywrightRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	return &PlaywrightRenderer{opts: opts, log: logger.New("PlaywrightRenderer")}
}

func (r *PlaywrightRenderer) ensureBrowser() (playwright.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil && r.browser.IsConnected() {
		return r.browser, nil
	}
	if r.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("playwright run: %w", err)
		}
		r.pw = pw
	}
	browser, err := r.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(r.opts.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--no-first-run",
			"--disable-default-apps",
			"--disable-extensions",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	r.browser = browser
	return browser, nil
}

// Close releases the browser and the driver.
func (r *PlaywrightRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
	if r.pw != nil {
		err := r.pw.Stop()
		r.pw = nil
		return err
	}
	return nil
}

func (r *PlaywrightRenderer) Render(ctx context.Context, url string) (*Rendered, error) {
	strategies := Strategies()
	var lastErr error
	for i, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.log.Debug().Str("url", url).Int("attempt", i+1).Str("strategy", string(strategy)).Msg("render attempt")

		page, err := r.renderWith(url, strategy)
		if err == nil && !IsChallenge(page) {
			if page.Status >= 400 {
				return nil, &HTTPStatusError{URL: url, Status: page.Status}
			}
			return page, nil
		}
		if err != nil {
			lastErr = err
			r.log.Info().Str("url", url).Str("strategy", string(strategy)).Str("error", err.Error()).Msg("render attempt failed")
		} else {
			lastErr = fmt.Errorf("bot challenge detected (HTTP %d)", page.Status)
			r.log.Info().Str("url", url).Str("strategy", string(strategy)).Int("status", page.Status).Msg("challenge detected")
		}
		if i < len(strategies)-1 {
			time.Sleep(time.Duration(1000+rand.Intn(1000)) * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("all strategies exhausted: %w", lastErr)
}

func (r *PlaywrightRenderer) renderWith(url string, strategy Strategy) (*Rendered, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}
	profile := Profile(strategy)
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(profile.UserAgent),
		ExtraHttpHeaders: profile.Headers(),
		Viewport:         &playwright.Size{Width: 1920, Height: 1080},
	})
	if err != nil {
		return nil, err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, err
	}

	timeout := float64(r.opts.Timeout.Milliseconds())
	resp, navErr := page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded, Timeout: playwright.Float(timeout / 2)})
	if navErr != nil {
		resp, navErr = page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad, Timeout: playwright.Float(timeout)})
		if navErr != nil {
			return nil, fmt.Errorf("goto failed: %w", navErr)
		}
	}

	if r.opts.Settle > 0 {
		_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(float64(r.opts.Settle.Milliseconds())),
		})
	}

	content, err := page.Content()
	if err != nil {
		return nil, err
	}
	title, _ := page.Title()
	status := 200
	if resp != nil {
		status = resp.Status()
	}
	return &Rendered{URL: url, Title: title, HTML: content, Status: status}, nil
}
