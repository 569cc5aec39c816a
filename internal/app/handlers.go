package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/customfields"
	"github.com/ledgerline/ledgerline/internal/finance"
	"github.com/ledgerline/ledgerline/internal/receivables"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/internal/tenant"
)

// Backend is the session-less surface of the remote store: tenant
// authentication and the public storefront read.
type Backend interface {
	Authenticate(ctx context.Context, slug, apiKey string) (string, error)
	StorefrontProducts(ctx context.Context, slug string) ([]remote.Row, error)
}

// API bundles the HTTP handlers over the session workspaces.
type API struct {
	logger     *slog.Logger
	sessions   *shared.SessionManager
	workspaces *tenant.Manager
	backend    Backend
}

// NewAPI constructs the handler set.
func NewAPI(logger *slog.Logger, sessions *shared.SessionManager, workspaces *tenant.Manager, backend Backend) *API {
	return &API{logger: logger, sessions: sessions, workspaces: workspaces, backend: backend}
}

type signInRequest struct {
	Slug   string `json:"slug"`
	APIKey string `json:"api_key"`
}

type signInResponse struct {
	Token    string `json:"token"`
	TenantID string `json:"tenant_id"`
}

// SignIn exchanges a tenant API key for a session token and opens a fresh
// workspace for it.
func (a *API) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tenantID, err := a.backend.Authenticate(r.Context(), req.Slug, req.APIKey)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := a.sessions.Create(r.Context(), tenantID)
	if err != nil {
		a.logger.Error("create session", slog.Any("error", err))
		writeError(w, err)
		return
	}
	if _, err := a.workspaces.OpenFor(r.Context(), sess.ID, tenantID); err != nil {
		a.logger.Error("open workspace", slog.Any("error", err))
		_ = a.sessions.Destroy(r.Context(), sess.ID)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, signInResponse{Token: sess.ID, TenantID: tenantID})
}

// SignOut destroys the session and closes its workspace on every path.
func (a *API) SignOut(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	a.workspaces.CloseFor(sess.ID)
	if err := a.sessions.Destroy(r.Context(), sess.ID); err != nil {
		a.logger.Warn("destroy session", slog.Any("error", err))
	}
	writeData(w, http.StatusOK, map[string]bool{"signed_out": true})
}

// Storefront lists a tenant's active products by public slug, without a
// session.
func (a *API) Storefront(w http.ResponseWriter, r *http.Request) {
	rows, err := a.backend.StorefrontProducts(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}

func wantRefresh(r *http.Request) bool {
	return r.URL.Query().Get("refresh") == "true"
}

// --- products ---

func (a *API) ListProducts(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if wantRefresh(r) || ws.Products.Cache().Len() == 0 {
		var filter catalog.ProductFilter
		if v := r.URL.Query().Get("category_id"); v != "" {
			filter.CategoryID = &v
		}
		if _, err := ws.Products.Load(r.Context(), filter); err != nil {
			writeError(w, err)
			return
		}
	}
	writeData(w, http.StatusOK, ws.Products.Cache().Snapshot())
}

func (a *API) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req catalog.CreateProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	product, err := ws.Products.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, product)
}

func (a *API) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req catalog.UpdateProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	product, err := ws.Products.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

func (a *API) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if err := ws.Products.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- categories ---

func (a *API) ListCategories(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if wantRefresh(r) || ws.Categories.Cache().Len() == 0 {
		if _, err := ws.Categories.Load(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeData(w, http.StatusOK, ws.Categories.Cache().Snapshot())
}

func (a *API) CreateCategory(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req catalog.CreateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	category, err := ws.Categories.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, category)
}

func (a *API) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req catalog.UpdateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	category, err := ws.Categories.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, category)
}

func (a *API) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if err := ws.Categories.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- custom fields ---

func (a *API) ListFields(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if wantRefresh(r) || ws.Fields.Cache().Len() == 0 {
		if _, err := ws.Fields.Load(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeData(w, http.StatusOK, ws.Fields.Cache().Snapshot())
}

func (a *API) CreateField(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req customfields.CreateFieldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	field, err := ws.Fields.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, field)
}

func (a *API) UpdateField(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req customfields.UpdateFieldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	field, err := ws.Fields.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, field)
}

func (a *API) DeleteField(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if err := ws.Fields.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ValidateFieldValues checks an attached key/value map against the cached
// field definitions, so forms can validate before submitting a sale.
func (a *API) ValidateFieldValues(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var values map[string]string
	if err := decodeBody(r, &values); err != nil {
		writeError(w, err)
		return
	}
	if ws.Fields.Cache().Len() == 0 {
		if _, err := ws.Fields.Load(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := ws.Fields.ValidateValues(values); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"valid": true})
}

// --- customers ---

func (a *API) ListCustomers(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if wantRefresh(r) || ws.Customers.Cache().Len() == 0 {
		if _, err := ws.Customers.Load(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeData(w, http.StatusOK, ws.Customers.Cache().Snapshot())
}

func (a *API) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req customers.CreateCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	customer, err := ws.Customers.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, customer)
}

func (a *API) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req customers.UpdateCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	customer, err := ws.Customers.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, customer)
}

func (a *API) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	if err := ws.Customers.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) CustomerStats(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	stats, err := ws.Finance.CustomerStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

type authorizeSaleRequest struct {
	Amount float64 `json:"amount"`
}

func (a *API) AuthorizeSale(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var req authorizeSaleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, shared.NewValidationError("amount", "must be positive"))
		return
	}
	decision, err := ws.Finance.AuthorizeCreditSale(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, decision)
}

// --- installments ---

func (a *API) ListInstallments(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	var filter receivables.Filter
	if v := r.URL.Query().Get("sale_id"); v != "" {
		filter.SaleID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := receivables.Status(v)
		filter.Status = &status
	}
	if wantRefresh(r) || filter.SaleID != nil || filter.Status != nil || ws.Receivables.Cache().Len() == 0 {
		list, err := ws.Receivables.Load(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, list)
		return
	}
	writeData(w, http.StatusOK, ws.Receivables.Cache().Snapshot())
}

func (a *API) PayInstallment(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	installment, err := ws.Receivables.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, installment)
}

func (a *API) CancelInstallment(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	installment, err := ws.Receivables.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, installment)
}

// --- reports ---

func parseDateParam(r *http.Request, name string, fallback time.Time) time.Time {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return fallback
}

func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	now := time.Now().UTC()
	from := parseDateParam(r, "from", now.AddDate(0, -1, 0))
	to := parseDateParam(r, "to", now)
	report, err := ws.Finance.Dashboard(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (a *API) Movements(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	now := time.Now().UTC()
	from := parseDateParam(r, "from", now.AddDate(0, -1, 0))
	to := parseDateParam(r, "to", now)
	movements, err := ws.Finance.InventoryMovements(r.Context(), r.URL.Query().Get("product_id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, movements)
}

func (a *API) Summary(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	now := time.Now().UTC()
	from := parseDateParam(r, "from", now.AddDate(0, -1, 0))
	to := parseDateParam(r, "to", now)
	summary, err := ws.Finance.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (a *API) ReceivableAging(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	asOf := parseDateParam(r, "as_of", time.Now().UTC())
	// source=cache buckets the session's loaded installments without a
	// round trip; the default asks the server for the full picture.
	if r.URL.Query().Get("source") == "cache" {
		writeData(w, http.StatusOK, finance.Age(ws.Receivables.Cache().Snapshot(), asOf))
		return
	}
	buckets, err := ws.Finance.ReceivableAging(r.Context(), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, buckets)
}

func (a *API) ProductProfitability(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	now := time.Now().UTC()
	from := parseDateParam(r, "from", now.AddDate(0, -1, 0))
	to := parseDateParam(r, "to", now)
	profits, err := ws.Finance.ProductProfitability(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, profits)
}

// CreditCheck is a lightweight headroom probe for the sale form.
func (a *API) CreditCheck(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r.Context())
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeError(w, shared.NewValidationError("amount", "must be a positive number"))
		return
	}
	allowed, err := ws.Finance.CreditHeadroom(r.Context(), chi.URLParam(r, "id"), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
