package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"paisapro/cartworker/internal/cart"
	"paisapro/cartworker/logger"
	pkgerr "paisapro/cartworker/pkg/errors"
	"paisapro/cartworker/services/compare"
	"paisapro/cartworker/services/scheduler"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	compare   *compare.Service
	cart      *cart.Service
	scheduler *scheduler.Scheduler
	sources   func() []string
	log       *logger.Logger
}

// NewHandlers creates the handler set. sources lists the registered source
// keys for /api/sources.
func NewHandlers(cmp *compare.Service, cartSvc *cart.Service, sched *scheduler.Scheduler, sources func() []string) *Handlers {
	return &Handlers{
		compare:   cmp,
		cart:      cartSvc,
		scheduler: sched,
		sources:   sources,
		log:       logger.ForCart().WithField("component", "handlers"),
	}
}

// Health reports liveness: the database must answer a ping, and the
// scheduler's state rides along.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Ping(r.Context()); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"database":          "ok",
		"scheduler_running": h.scheduler.Status().Running,
	})
}

// Sources lists the registered retail sources.
func (h *Handlers) Sources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": h.sources()})
}

// Compare runs an ad-hoc price comparison.
// GET /api/compare?query=rice&sources=daraz,alfatah&top_n=10&sort=true
func (h *Handlers) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := q.Get("query")
	if query == "" {
		query = q.Get("q")
	}

	var sources []string
	if raw := q.Get("sources"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
	}

	opts := compare.Options{
		Sources:           sources,
		TopN:              queryInt(q.Get("top_n"), 10),
		SortByPrice:       queryBool(q.Get("sort"), true),
		EqualDistribution: queryBool(q.Get("equal_distribution"), false),
		Parallel:          queryBool(q.Get("parallel"), true),
	}

	result, err := h.compare.Find(r.Context(), query, opts)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":      query,
		"count":      len(result.Listings),
		"elapsed_ms": result.Elapsed.Milliseconds(),
		"listings":   result.Listings,
	})
}

type createListRequest struct {
	UserID string         `json:"user_id"`
	Name   string         `json:"list_name"`
	Items  []cart.NewItem `json:"items"`
}

// CreateList creates a shopping list with initial items.
func (h *Handlers) CreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, pkgerr.NewValidation("invalid request body"))
		return
	}
	list, err := h.cart.CreateList(r.Context(), req.UserID, req.Name, req.Items)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// UserLists returns the user's list summaries.
func (h *Handlers) UserLists(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	lists, err := h.cart.UserLists(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "lists": lists})
}

// AddItem adds a product to a list.
func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req cart.NewItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, pkgerr.NewValidation("invalid request body"))
		return
	}
	item, err := h.cart.AddItem(r.Context(), listID, req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// OptimizedCart returns the best-price view of a list.
// GET /api/cart/{id}/optimized?refresh=true
func (h *Handlers) OptimizedCart(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	refresh := queryBool(r.URL.Query().Get("refresh"), false)

	optimized, err := h.cart.OptimizedCart(r.Context(), listID, refresh)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, optimized)
}

// DeleteList removes a list owned by the requesting user.
// DELETE /api/cart/{id}?user_id=u1
func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, h.log, pkgerr.NewValidation("user_id query parameter is required"))
		return
	}
	if err := h.cart.DeleteList(r.Context(), listID, userID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": listID})
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItemQuantity changes an item's quantity.
func (h *Handlers) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, pkgerr.NewValidation("invalid request body"))
		return
	}
	if err := h.cart.UpdateItemQuantity(r.Context(), itemID, req.Quantity); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "quantity": req.Quantity})
}

// DeleteItem removes an item from its list.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.cart.RemoveItem(r.Context(), itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": itemID})
}

// MarkPurchased marks an item purchased.
func (h *Handlers) MarkPurchased(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.cart.MarkPurchased(r.Context(), itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "status": cart.StatusPurchased})
}

// PriceHistory returns a product's recorded observations.
// GET /api/price-history/{product}?days=30
func (h *Handlers) PriceHistory(w http.ResponseWriter, r *http.Request) {
	product := r.PathValue("product")
	days := queryInt(r.URL.Query().Get("days"), 30)

	records, err := h.cart.PriceHistory(r.Context(), product, days)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_name": product,
		"days":         days,
		"count":        len(records),
		"history":      records,
	})
}

// SchedulerStatus reports the refresh scheduler's state.
func (h *Handlers) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// RefreshNow triggers an immediate full refresh sweep.
func (h *Handlers) RefreshNow(w http.ResponseWriter, r *http.Request) {
	report := h.scheduler.RefreshAll(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// RefreshList refreshes every pending item of one list.
func (h *Handlers) RefreshList(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	report, err := h.scheduler.RefreshList(r.Context(), listID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil || id < 1 {
		return 0, pkgerr.NewValidation("invalid " + key + " path parameter")
	}
	return id, nil
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func queryBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}
