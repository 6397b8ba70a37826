// Package browser drives the monitoring dashboard through headless Chrome.
// It is the UI-side collaborator of the extraction core: everything here is
// thin plumbing over chromedp; the core only depends on the four primitives
// (element rect, pointer move, visible text, screenshot) via scan.Session.
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"chartaudit/internal/scan"
)

// Options configures a dashboard session. Selectors default to the stock
// dashboard markup and only need overriding when the vendor restyles.
type Options struct {
	Headless bool
	Timeout  time.Duration // per-action timeout

	UserSel         string
	PassSel         string
	CaptchaImageSel string
	CaptchaInputSel string
	LoginButtonSel  string
	StartDateSel    string
	EndDateSel      string
	ApplySel        string
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserSel == "" {
		o.UserSel = `input[name="username"]`
	}
	if o.PassSel == "" {
		o.PassSel = `input[name="password"]`
	}
	if o.CaptchaImageSel == "" {
		o.CaptchaImageSel = `img.captcha`
	}
	if o.CaptchaInputSel == "" {
		o.CaptchaInputSel = `input[name="captcha"]`
	}
	if o.LoginButtonSel == "" {
		o.LoginButtonSel = `button[type="submit"]`
	}
	if o.StartDateSel == "" {
		o.StartDateSel = `input[name="startDate"]`
	}
	if o.EndDateSel == "" {
		o.EndDateSel = `input[name="endDate"]`
	}
	if o.ApplySel == "" {
		o.ApplySel = `button.apply-range`
	}
}

// Session owns one browser and must not be shared across concurrent runs:
// the hover tooltip is a single piece of page state.
type Session struct {
	opts    Options
	ctx     context.Context
	cancels []context.CancelFunc
}

// New starts a browser. The caller must Close the session on every exit
// path.
func New(parent context.Context, opts Options) (*Session, error) {
	opts.applyDefaults()

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &Session{
		opts:    opts,
		ctx:     ctx,
		cancels: []context.CancelFunc{cancelCtx, cancelAlloc},
	}
	// Start the browser now so a broken Chrome install fails the run here
	// instead of mid-scan.
	if err := chromedp.Run(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}
	return s, nil
}

// Close tears the browser down. Safe to call more than once.
func (s *Session) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a dashboard page and waits for the document to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// Login fills the credential form. The captcha image is saved to
// captchaFile and solve is called with that path to obtain the code;
// recognition itself happens outside this package.
func (s *Session) Login(ctx context.Context, user, pass, captchaFile string, solve func(imagePath string) (string, error)) error {
	if err := s.run(ctx,
		chromedp.WaitVisible(s.opts.UserSel, chromedp.ByQuery),
		chromedp.SendKeys(s.opts.UserSel, user, chromedp.ByQuery),
		chromedp.SendKeys(s.opts.PassSel, pass, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: fill credentials: %w", err)
	}

	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(s.opts.CaptchaImageSel, &buf, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: capture captcha: %w", err)
	}
	if err := os.WriteFile(captchaFile, buf, 0o644); err != nil {
		return fmt.Errorf("browser: save captcha: %w", err)
	}
	code, err := solve(captchaFile)
	if err != nil {
		return fmt.Errorf("browser: solve captcha: %w", err)
	}

	if err := s.run(ctx,
		chromedp.SendKeys(s.opts.CaptchaInputSel, code, chromedp.ByQuery),
		chromedp.Click(s.opts.LoginButtonSel, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("browser: submit login: %w", err)
	}
	return nil
}

// SelectTab clicks the navigation element whose visible text equals the
// given label (category tabs, report tabs).
func (s *Session) SelectTab(ctx context.Context, label string) error {
	expr := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll('a, button, li, span[role="tab"]');
		for (const e of els) {
			if (e.innerText && e.innerText.trim() === %q) { e.click(); return true; }
		}
		return false;
	})()`, label)
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(expr, &clicked), chromedp.Sleep(time.Second)); err != nil {
		return fmt.Errorf("browser: select tab %q: %w", label, err)
	}
	if !clicked {
		return fmt.Errorf("browser: tab %q not found", label)
	}
	return nil
}

// EnterDateRange fills the date range controls and applies them.
func (s *Session) EnterDateRange(ctx context.Context, start, end string) error {
	if err := s.run(ctx,
		chromedp.WaitVisible(s.opts.StartDateSel, chromedp.ByQuery),
		clearAndType(s.opts.StartDateSel, start),
		clearAndType(s.opts.EndDateSel, end),
		chromedp.Click(s.opts.ApplySel, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("browser: enter date range %s..%s: %w", start, end, err)
	}
	return nil
}

func clearAndType(sel, value string) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	}
}

// ElementRect returns the plotting rectangle of the element the selector
// addresses, in viewport coordinates.
func (s *Session) ElementRect(ctx context.Context, sel string) (scan.Rect, error) {
	expr := fmt.Sprintf(`(() => {
		const e = document.querySelector(%q);
		if (!e) return null;
		const r = e.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height};
	})()`, sel)
	var rect *scan.Rect
	if err := s.run(ctx, chromedp.Evaluate(expr, &rect)); err != nil {
		return scan.Rect{}, fmt.Errorf("browser: rect of %q: %w", sel, err)
	}
	if rect == nil {
		return scan.Rect{}, fmt.Errorf("browser: element %q not found", sel)
	}
	return *rect, nil
}

// MoveMouse dispatches a raw pointer-move at absolute viewport coordinates.
// This is what makes chart libraries show their hover tooltip.
func (s *Session) MoveMouse(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y)); err != nil {
		return fmt.Errorf("browser: pointer move to (%.0f, %.0f): %w", x, y, err)
	}
	return nil
}

// VisibleText returns the rendered text of the selected element, or of the
// whole document when the selector is empty. Extraction goes through the
// rendered HTML so text assembled by scripts is included.
func (s *Session) VisibleText(ctx context.Context, selector string) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("browser: parse page: %w", err)
	}
	if strings.TrimSpace(selector) == "" {
		return doc.Text(), nil
	}
	var b strings.Builder
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(text)
		}
	})
	return b.String(), nil
}

// Screenshot captures the selected element as PNG bytes.
func (s *Session) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(sel, &buf, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("browser: screenshot %q: %w", sel, err)
	}
	return buf, nil
}
