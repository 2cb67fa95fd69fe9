package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerr "paisapro/cartworker/pkg/errors"
)

const renderedPage = `<html><body><div class="product">Rice 5kg</div></body></html>`

// stubChrome fakes the ChromeDB /function endpoint and records the payloads
// it receives.
func stubChrome(t *testing.T, respond func(w http.ResponseWriter)) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var payloads []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/function", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		payloads = append(payloads, payload)

		respond(w)
	}))
	t.Cleanup(srv.Close)
	return srv, &payloads
}

func TestChromeSessionBatchesSteps(t *testing.T) {
	srv, payloads := stubChrome(t, func(w http.ResponseWriter) {
		w.Write([]byte(renderedPage))
	})

	rend := NewChromeRenderer(srv.URL, 1, 5*time.Second)
	ctx := context.Background()

	session, err := rend.Open(ctx, true)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(ctx, "https://example.com/"))
	require.NoError(t, session.TryClick(ctx, "button.express", "div.delivery-tabs button"))
	require.NoError(t, session.TryType(ctx, "Askari 1", "input.area", "input[type='text']"))
	require.NoError(t, session.TryPress(ctx, "Enter"))
	session.Wait(time.Second)
	require.NoError(t, session.ScrollToBottom(ctx))

	doc, err := session.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rice 5kg", doc.Find(".product").Text())

	// One render call carrying every recorded step.
	require.Len(t, *payloads, 1)
	renderCtx := (*payloads)[0]["context"].(map[string]any)
	assert.Equal(t, "https://example.com/", renderCtx["url"])

	steps := renderCtx["steps"].([]any)
	require.Len(t, steps, 5)
	ops := make([]string, 0, len(steps))
	for _, s := range steps {
		ops = append(ops, s.(map[string]any)["op"].(string))
	}
	assert.Equal(t, []string{"click", "type", "press", "wait", "scroll"}, ops)

	// The full candidate selector chains travel with their steps, in order,
	// so the browser side can fall back when the first selector misses.
	click := steps[0].(map[string]any)
	assert.Equal(t, []any{"button.express", "div.delivery-tabs button"}, click["selectors"])
	typed := steps[1].(map[string]any)
	assert.Equal(t, []any{"input.area", "input[type='text']"}, typed["selectors"])
	assert.Equal(t, "Askari 1", typed["text"])
}

func TestScrollRequiresBrowserRender(t *testing.T) {
	srv, payloads := stubChrome(t, func(w http.ResponseWriter) {
		w.Write([]byte(renderedPage))
	})

	rend := NewChromeRenderer(srv.URL, 1, 5*time.Second)
	ctx := context.Background()

	session, err := rend.Open(ctx, true)
	require.NoError(t, err)
	defer session.Close()

	// Lazy-loaded content needs a real scroll; no static fetch shortcut.
	require.NoError(t, session.Navigate(ctx, "https://example.com/"))
	session.Wait(time.Second)
	require.NoError(t, session.ScrollToBottom(ctx))

	doc, err := session.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rice 5kg", doc.Find(".product").Text())
	require.Len(t, *payloads, 1)
}

func TestStaticShellFallsBackToBrowser(t *testing.T) {
	var gets, renders int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/function" {
			renders++
			w.Write([]byte(renderedPage))
			return
		}
		// The storefront answers direct fetches with a script shell.
		gets++
		w.Write([]byte(`<html><head><script src="app.js"></script></head><body></body></html>`))
	}))
	t.Cleanup(srv.Close)

	rend := NewChromeRenderer(srv.URL, 1, 5*time.Second)
	session, err := rend.Open(context.Background(), true)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(context.Background(), srv.URL+"/"))

	doc, err := session.Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rice 5kg", doc.Find(".product").Text())
	assert.Equal(t, 1, gets)
	assert.Equal(t, 1, renders)
}

func TestChromeRendererJSONEnvelope(t *testing.T) {
	srv, _ := stubChrome(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"content": renderedPage},
		})
	})

	rend := NewChromeRenderer(srv.URL, 1, 5*time.Second)
	session, err := rend.Open(context.Background(), true)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(context.Background(), "https://example.com/"))
	require.NoError(t, session.TryClick(context.Background(), "a.first", "a.second"))

	doc, err := session.Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rice 5kg", doc.Find(".product").Text())
}

func TestChromeRendererErrorStatus(t *testing.T) {
	srv, _ := stubChrome(t, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})

	rend := NewChromeRenderer(srv.URL, 1, 5*time.Second)
	session, err := rend.Open(context.Background(), true)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(context.Background(), "https://example.com/"))
	require.NoError(t, session.TryClick(context.Background(), "a"))

	_, err = session.Content(context.Background())
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeRenderer))
}

func TestContentWithoutNavigation(t *testing.T) {
	rend := NewChromeRenderer("http://localhost:3000", 1, time.Second)
	session, err := rend.Open(context.Background(), true)
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Content(context.Background())
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeRenderer))
}

func TestSessionSlots(t *testing.T) {
	rend := NewChromeRenderer("http://localhost:3000", 1, time.Second)

	first, err := rend.Open(context.Background(), true)
	require.NoError(t, err)

	// The single slot is taken; a second Open times out.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rend.Open(ctx, true)
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeRenderer))

	// Closing frees the slot.
	require.NoError(t, first.Close())
	second, err := rend.Open(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	// Double close releases only once.
	require.NoError(t, second.Close())
}
