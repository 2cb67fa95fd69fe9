package scraper

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func testRetailSource() *RetailSource {
	return NewRetailSource(SourceConfig{
		Name:            "teststore",
		SearchURLFormat: "https://example.com/search?q=%s",
		BaseURL:         "https://example.com",
		ContainerSelectors: []string{
			".product-new",
			".product",
		},
		NameSelectors:  []string{".title a", ".title"},
		PriceSelectors: []string{".price"},
		LinkSelector:   "a",
	}, NewConverter(280))
}

func TestRetailSourceSearchURL(t *testing.T) {
	source := testRetailSource()
	assert.Equal(t, "https://example.com/search?q=basmati+rice+5kg", source.SearchURL("basmati rice 5kg"))
}

func TestRetailSourceExtractAndParse(t *testing.T) {
	html := `
		<html><body>
			<div class="product">
				<div class="title"><a href="/p/rice-premium" title="Premium Basmati Rice 5kg">Premium Basmati Rice 5kg</a></div>
				<span class="price">Rs. 2,450</span>
			</div>
			<div class="product">
				<div class="title"><a href="//cdn.example.com/p/rice-classic">Classic Rice 5kg</a></div>
				<span class="price">PKR 1,960</span>
			</div>
			<div class="product">
				<div class="title">No Price Product</div>
			</div>
		</body></html>`

	source := testRetailSource()
	nodes := source.ExtractRaw(docFromHTML(t, html))
	require.Len(t, nodes, 3)

	listings := source.ParseRaw(nodes)
	require.Len(t, listings, 2)

	assert.Equal(t, "Premium Basmati Rice 5kg", listings[0].Name)
	assert.Equal(t, 2450.0, listings[0].PricePKR)
	assert.Equal(t, 8.75, listings[0].PriceUSD)
	assert.Equal(t, "https://example.com/p/rice-premium", listings[0].URL)
	assert.Equal(t, "teststore", listings[0].Source)

	assert.Equal(t, "Classic Rice 5kg", listings[1].Name)
	assert.Equal(t, 1960.0, listings[1].PricePKR)
	assert.Equal(t, "https://cdn.example.com/p/rice-classic", listings[1].URL)
}

func TestRetailSourceContainerFallback(t *testing.T) {
	// Second selector in the chain matches when the first finds nothing.
	html := `
		<html><body>
			<div class="product">
				<div class="title">Sugar 1kg</div>
				<span class="price">Rs 180</span>
			</div>
		</body></html>`

	source := testRetailSource()
	nodes := source.ExtractRaw(docFromHTML(t, html))
	require.Len(t, nodes, 1)

	listings := source.ParseRaw(nodes)
	require.Len(t, listings, 1)
	assert.Equal(t, "Sugar 1kg", listings[0].Name)
	assert.Equal(t, 180.0, listings[0].PricePKR)
}

func TestRetailSourceDeduplicatesNames(t *testing.T) {
	html := `
		<html><body>
			<div class="product"><div class="title">Tea 900g</div><span class="price">Rs 1,500</span></div>
			<div class="product"><div class="title">Tea 900g</div><span class="price">Rs 1,480</span></div>
		</body></html>`

	source := testRetailSource()
	listings := source.ParseRaw(source.ExtractRaw(docFromHTML(t, html)))

	require.Len(t, listings, 1)
	assert.Equal(t, 1500.0, listings[0].PricePKR)
}

func TestRetailSourcePriceFallbackToNodeText(t *testing.T) {
	// No .price element; the amount still appears in the card text.
	html := `
		<html><body>
			<div class="product">
				<div class="title">Flour 10kg</div>
				<div class="meta">Special offer Rs. 1,250</div>
			</div>
		</body></html>`

	source := testRetailSource()
	listings := source.ParseRaw(source.ExtractRaw(docFromHTML(t, html)))

	require.Len(t, listings, 1)
	assert.Equal(t, 1250.0, listings[0].PricePKR)
}

func TestRetailSourceMissingLink(t *testing.T) {
	html := `
		<html><body>
			<div class="product">
				<div class="title">Salt 800g</div>
				<span class="price">Rs 60</span>
			</div>
		</body></html>`

	source := testRetailSource()
	listings := source.ParseRaw(source.ExtractRaw(docFromHTML(t, html)))

	require.Len(t, listings, 1)
	assert.Equal(t, "N/A", listings[0].URL)
}

func TestSetupSendsFullSelectorChains(t *testing.T) {
	source := NewRetailSource(SourceConfig{
		Name:            "teststore",
		HomeURL:         "https://example.com/",
		SearchURLFormat: "https://example.com/search?q=%s",
		SetupSteps: []SetupStep{
			{Action: "click", Selectors: []string{"button.primary", "button.legacy", "[data-testid='cta']"}},
			{Action: "type", Selectors: []string{"input.area", "input[type='text']"}, Text: "Askari 1"},
			{Action: "press", Key: "Enter"},
		},
	}, NewConverter(280))

	session := &fakeSession{}
	require.NoError(t, source.Setup(context.Background(), session))

	assert.Equal(t, []string{"https://example.com/"}, session.navigated)

	// Every candidate selector reaches the session, in configured order;
	// picking the one present on the page is the renderer's job.
	require.Len(t, session.clicks, 1)
	assert.Equal(t, []string{"button.primary", "button.legacy", "[data-testid='cta']"}, session.clicks[0])

	require.Len(t, session.typed, 1)
	assert.Equal(t, []string{"Askari 1", "input.area", "input[type='text']"}, session.typed[0])

	assert.Equal(t, []string{"Enter"}, session.pressed)
}

func TestRetailSourceNoContainers(t *testing.T) {
	source := testRetailSource()
	nodes := source.ExtractRaw(docFromHTML(t, `<html><body><p>empty shelf</p></body></html>`))
	assert.Empty(t, nodes)
}
