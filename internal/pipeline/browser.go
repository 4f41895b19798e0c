package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ppiankov/alma/internal/model"
)

// Browser renders pages in headless Chrome for sites that build content in JavaScript
type Browser struct {
	timeout   time.Duration
	userAgent string
	proxy     string
}

// NewBrowser creates a renderer. proxy may be empty.
func NewBrowser(timeout time.Duration, userAgent, proxy string) *Browser {
	return &Browser{timeout: timeout, userAgent: userAgent, proxy: proxy}
}

// Retrieve implements Retriever
func (b *Browser) Retrieve(ctx context.Context, rawURL string) (*FetchResult, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.proxy))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	var html, finalURL string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		// Navigation failures are transport errors for the purposes of the gate
		return nil, fmt.Errorf("fetch: render %s: %w", rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}

	return &FetchResult{
		HTML:     html,
		Meta:     model.FetchMeta{StatusCode: 200, ContentType: "text/html", Renderer: "chrome"},
		Subject:  extractSubject(finalURL),
		FinalURL: finalURL,
	}, nil
}
