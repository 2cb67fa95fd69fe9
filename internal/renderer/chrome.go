package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"paisapro/cartworker/helpers"
	pkgerr "paisapro/cartworker/pkg/errors"
)

// ChromeRenderer renders pages through a ChromeDB /function endpoint. A
// bounded semaphore caps the number of browser pages held open at once;
// Open blocks until a slot is free and Close returns it.
type ChromeRenderer struct {
	addr   string
	client *http.Client
	slots  chan struct{}
}

// NewChromeRenderer creates a renderer against the given ChromeDB address
// with at most maxSessions concurrent sessions.
func NewChromeRenderer(addr string, maxSessions int, timeout time.Duration) *ChromeRenderer {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &ChromeRenderer{
		addr:   strings.TrimRight(addr, "/"),
		client: &http.Client{Timeout: timeout},
		slots:  make(chan struct{}, maxSessions),
	}
}

// Open acquires a session slot.
func (r *ChromeRenderer) Open(ctx context.Context, headless bool) (Session, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, pkgerr.NewRenderer("", "timed out waiting for a render slot", ctx.Err())
	}
	return &chromeSession{renderer: r, headless: headless}, nil
}

type renderStep struct {
	Op        string   `json:"op"`
	Selectors []string `json:"selectors,omitempty"`
	Text      string   `json:"text,omitempty"`
	Key       string   `json:"key,omitempty"`
	Ms        int64    `json:"ms,omitempty"`
}

// chromeSession batches navigation and interaction steps and replays them
// in a single ChromeDB function call when Content is requested. The
// endpoint is stateless, so all steps for one page load travel together.
type chromeSession struct {
	renderer *ChromeRenderer
	headless bool
	url      string
	steps    []renderStep
	closed   bool
}

func (s *chromeSession) Navigate(_ context.Context, url string) error {
	if s.url != "" {
		s.steps = append(s.steps, renderStep{Op: "goto", Text: url})
		return nil
	}
	s.url = url
	return nil
}

func (s *chromeSession) Wait(d time.Duration) error {
	s.steps = append(s.steps, renderStep{Op: "wait", Ms: d.Milliseconds()})
	return nil
}

func (s *chromeSession) ScrollToBottom(_ context.Context) error {
	s.steps = append(s.steps, renderStep{Op: "scroll"})
	return nil
}

func (s *chromeSession) TryClick(_ context.Context, selectors ...string) error {
	if len(selectors) == 0 {
		return pkgerr.NewRenderer("", "click step needs at least one selector", nil)
	}
	s.steps = append(s.steps, renderStep{Op: "click", Selectors: selectors})
	return nil
}

func (s *chromeSession) TryType(_ context.Context, text string, selectors ...string) error {
	if len(selectors) == 0 {
		return pkgerr.NewRenderer("", "type step needs at least one selector", nil)
	}
	s.steps = append(s.steps, renderStep{Op: "type", Selectors: selectors, Text: text})
	return nil
}

func (s *chromeSession) TryPress(_ context.Context, key string) error {
	s.steps = append(s.steps, renderStep{Op: "press", Key: key})
	return nil
}

// interactive reports whether any step needs a live browser. Scroll counts:
// it exists to trigger lazy-loaded content, which a static fetch cannot do.
func (s *chromeSession) interactive() bool {
	for _, st := range s.steps {
		switch st.Op {
		case "click", "type", "press", "goto", "scroll":
			return true
		}
	}
	return false
}

func (s *chromeSession) Content(ctx context.Context) (*goquery.Document, error) {
	if s.url == "" {
		return nil, pkgerr.NewRenderer("", "no navigation before content", nil)
	}

	// A plain navigate-and-wait render can be served by a direct HTTP fetch.
	// An empty body means a script shell; fall through to the browser.
	if !s.interactive() {
		if body, err := helpers.FetchWithRandomHeaders(ctx, s.url); err == nil {
			if doc, derr := goquery.NewDocumentFromReader(body); derr == nil &&
				doc.Find("body").Children().Length() > 0 {
				return doc, nil
			}
		} else if errors.Is(err, helpers.ErrRateLimited) {
			return nil, err
		}
	}

	html, err := s.renderer.render(ctx, s.url, s.steps)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, pkgerr.NewRenderer("", "failed to parse rendered HTML", err)
	}
	return doc, nil
}

func (s *chromeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	<-s.renderer.slots
	return nil
}

// renderCode drives one page load plus the recorded interaction steps.
// Click and type steps carry an ordered candidate selector list and use the
// first one present on the page; steps are best-effort so a drifted
// selector degrades instead of failing the whole render.
const renderCode = `module.exports = async ({ page, context }) => {
	await page.setViewport({ width: 1920, height: 1080 });
	await page.setUserAgent('Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36');
	await page.goto(context.url, { waitUntil: 'domcontentloaded', timeout: context.timeoutMs });
	const firstPresent = async (selectors) => {
		for (const sel of selectors || []) {
			try {
				if (await page.$(sel)) return sel;
			} catch (e) {}
		}
		return null;
	};
	for (const step of context.steps) {
		try {
			if (step.op === 'wait') {
				await page.waitForTimeout(step.ms);
			} else if (step.op === 'scroll') {
				await page.evaluate(() => window.scrollTo(0, document.body.scrollHeight));
			} else if (step.op === 'click') {
				const sel = await firstPresent(step.selectors);
				if (sel) await page.click(sel);
			} else if (step.op === 'type') {
				const sel = await firstPresent(step.selectors);
				if (sel) {
					await page.click(sel);
					await page.type(sel, step.text);
				}
			} else if (step.op === 'press') {
				await page.keyboard.press(step.key);
			} else if (step.op === 'goto') {
				await page.goto(step.text, { waitUntil: 'domcontentloaded', timeout: context.timeoutMs });
			}
		} catch (e) {
			// best-effort step
		}
	}
	return await page.content();
}`

func (r *ChromeRenderer) render(ctx context.Context, url string, steps []renderStep) (string, error) {
	if steps == nil {
		steps = []renderStep{}
	}
	payload := map[string]interface{}{
		"code": renderCode,
		"context": map[string]interface{}{
			"url":       url,
			"steps":     steps,
			"timeoutMs": 45000,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", pkgerr.NewRenderer("", "failed to marshal render payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.addr+"/function", bytes.NewBuffer(data))
	if err != nil {
		return "", pkgerr.NewRenderer("", "failed to create render request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", pkgerr.NewRenderer("", "render request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pkgerr.NewRenderer("", fmt.Sprintf("render endpoint returned status %d", resp.StatusCode), nil)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pkgerr.NewRenderer("", "failed to read render response", err)
	}
	if len(bodyBytes) == 0 {
		return "", pkgerr.NewRenderer("", "empty render response", nil)
	}

	content := unwrapContent(bodyBytes)
	if !strings.Contains(content, "<html") && !strings.Contains(content, "<body") {
		return "", pkgerr.NewRenderer("", fmt.Sprintf("non-HTML render response (%d bytes)", len(content)), nil)
	}
	return content, nil
}

// unwrapContent extracts HTML from the response, which may arrive either as
// raw HTML or wrapped in a JSON envelope under one of several field names.
func unwrapContent(body []byte) string {
	content := string(body)
	if !strings.HasPrefix(strings.TrimSpace(content), "{") {
		return content
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return content
	}

	if data, ok := result["data"].(map[string]interface{}); ok {
		if html, ok := data["content"].(string); ok && html != "" {
			return html
		}
	}
	for _, field := range []string{"content", "data", "result", "html"} {
		if html, ok := result[field].(string); ok && html != "" {
			return html
		}
	}
	return content
}
