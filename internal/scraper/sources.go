package scraper

import (
	"strings"
	"time"

	"paisapro/cartworker/config"
)

// RegisterBuiltins registers the built-in retail sources. Selector chains
// are ordered newest-markup-first; older selectors stay as fallbacks
// because these sites reshuffle their storefronts without notice.
func RegisterBuiltins(registry *Registry, cfg config.Config, converter *Converter) {
	registry.Register("daraz", func(_ map[string]string) Source {
		return NewRetailSource(SourceConfig{
			Name:            "daraz",
			SearchURLFormat: strings.TrimRight(cfg.DarazURL, "/") + "/?q=%s",
			BaseURL:         "https://www.daraz.pk",
			ContainerSelectors: []string{
				".Ms6aG",
				"[data-qa-locator='product-item']",
				".gridItem",
			},
			NameSelectors: []string{
				".RfADt a",
				"a[title]",
			},
			PriceSelectors: []string{
				".ooOxS",
				".price",
			},
			LinkSelector: ".RfADt a, a[title]",
		}, converter)
	})

	registry.Register("alfatah", func(_ map[string]string) Source {
		return NewRetailSource(SourceConfig{
			Name:            "alfatah",
			SearchURLFormat: cfg.AlfatahURL + "?q=%s",
			BaseURL:         "https://alfatah.pk",
			ContainerSelectors: []string{
				"div.card-wrapper",
				"div.product-item",
				"article.card",
				"li.grid__item",
				"div.product-card",
			},
			NameSelectors: []string{
				"a.product-title-ellipsis",
				"h3 a",
				"div.card__heading a",
				".card__content a",
			},
			PriceSelectors: []string{
				"span.price",
				"div.price",
				"[class*='price']",
			},
			LinkSelector: "a[href*='/products/']",
		}, converter)
	})

	registry.Register("imtiaz", func(extra map[string]string) Source {
		locality := cfg.ImtiazLocality
		if extra != nil && extra["locality"] != "" {
			locality = extra["locality"]
		}
		return NewRetailSource(SourceConfig{
			Name:            "imtiaz",
			HomeURL:         cfg.ImtiazURL,
			SearchURLFormat: strings.TrimRight(cfg.ImtiazURL, "/") + "/search?q=%s",
			BaseURL:         strings.TrimRight(cfg.ImtiazURL, "/"),
			ContainerSelectors: []string{
				"div[class*='ProductCard']",
				"div[class*='product']",
				"article",
			},
			NameSelectors: []string{
				"div[class*='ProductCard'] h3",
				"p[class*='name']",
				"a[title]",
			},
			PriceSelectors: []string{
				"span[class*='price']",
				"div[class*='price']",
			},
			LinkSelector: "a",
			// Delivery-area modal: pick express mode, type the locality,
			// confirm the suggestion, then the select button.
			SetupSteps: []SetupStep{
				{
					Action:      "click",
					Selectors:   []string{"button.express-mode", "div.delivery-tabs button", "[data-testid='express-tab']"},
					SettleAfter: 3 * time.Second,
				},
				{
					Action:      "type",
					Selectors:   []string{"input[placeholder*='area' i]", "input[placeholder*='location' i]", "input[type='text']"},
					Text:        locality,
					SettleAfter: 2 * time.Second,
				},
				{
					Action:      "press",
					Key:         "ArrowDown",
					SettleAfter: time.Second,
				},
				{
					Action:      "press",
					Key:         "Enter",
					SettleAfter: 2 * time.Second,
				},
				{
					Action:      "click",
					Selectors:   []string{"button.select-area", "button[type='submit']", "div.modal-footer button"},
					SettleAfter: 5 * time.Second,
				},
			},
		}, converter)
	})
}
