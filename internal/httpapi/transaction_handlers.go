package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memogarden/memogarden-core/internal/audit"
	"github.com/memogarden/memogarden-core/internal/isotime"
	"github.com/memogarden/memogarden-core/internal/store"
)

type createTransactionRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Date         string          `json:"transaction_date"`
	Description  string          `json:"description"`
	Account      string          `json:"account"`
	Category     *string         `json:"category"`
	Notes        *string         `json:"notes"`
	Author       string          `json:"author"`
	RecurrenceID *string         `json:"recurrence_id"`
	GroupID      *string         `json:"group_id"`
	DerivedFrom  *string         `json:"derived_from"`
}

type patchTransactionRequest struct {
	Amount       *decimal.Decimal `json:"amount"`
	Currency     *string          `json:"currency"`
	Date         *string          `json:"transaction_date"`
	Description  *string          `json:"description"`
	Account      *string          `json:"account"`
	Category     *string          `json:"category"`
	Notes        *string          `json:"notes"`
	RecurrenceID *string          `json:"recurrence_id"`
}

type listTransactionsResponse struct {
	Items []store.Transaction `json:"items"`
	AsOf  time.Time           `json:"as_of"`
}

func (a *API) handleTransactionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTransaction(w, r)
	case http.MethodGet:
		a.listTransactions(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTransactionResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getTransaction(w, r, id)
	case http.MethodPatch:
		a.patchTransaction(w, r, id)
	case http.MethodDelete:
		a.deleteTransaction(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) createTransaction(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Account) == "" {
		writeError(w, r, http.StatusBadRequest, "account is required")
		return
	}
	if strings.TrimSpace(req.Date) == "" {
		writeError(w, r, http.StatusBadRequest, "transaction_date is required")
		return
	}
	date, err := isotime.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "transaction_date must be YYYY-MM-DD")
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = a.defaultCurrency
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = ident.Username
	}

	fields := store.TransactionFields{
		Amount:       req.Amount,
		Currency:     currency,
		Date:         date,
		Description:  strings.TrimSpace(req.Description),
		Account:      strings.TrimSpace(req.Account),
		Category:     req.Category,
		Notes:        req.Notes,
		Author:       author,
		RecurrenceID: req.RecurrenceID,
	}
	if req.GroupID != nil {
		fields.Provenance.GroupID = *req.GroupID
	}
	if req.DerivedFrom != nil {
		fields.Provenance.DerivedFrom = *req.DerivedFrom
	}

	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	id, err := core.Transactions().Create(r.Context(), fields)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	tx, err := core.Transactions().Get(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "transaction.created", map[string]any{
		"transaction_id": id,
		"account":        fields.Account,
		"amount":         fields.Amount.String(),
		"currency":       currency,
	})
	w.Header().Set("Location", "/api/v1/transactions/"+id)
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) getTransaction(w http.ResponseWriter, r *http.Request, id string) {
	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	tx, err := core.Transactions().Get(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := store.TransactionFilter{
		Account:           strings.TrimSpace(q.Get("account")),
		Category:          strings.TrimSpace(q.Get("category")),
		StartDate:         strings.TrimSpace(q.Get("start_date")),
		EndDate:           strings.TrimSpace(q.Get("end_date")),
		IncludeSuperseded: q.Get("include_superseded") == "true",
	}
	for _, d := range []string{filter.StartDate, filter.EndDate} {
		if d == "" {
			continue
		}
		if _, err := isotime.ParseDate(d); err != nil {
			writeError(w, r, http.StatusBadRequest, "date filters must be YYYY-MM-DD")
			return
		}
	}

	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	items, err := core.Transactions().List(r.Context(), filter, limit, offset)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) patchTransaction(w http.ResponseWriter, r *http.Request, id string) {
	var req patchTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	patch := store.TransactionPatch{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Description:  req.Description,
		Account:      req.Account,
		Category:     req.Category,
		Notes:        req.Notes,
		RecurrenceID: req.RecurrenceID,
	}
	if req.Date != nil {
		date, err := isotime.ParseDate(*req.Date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "transaction_date must be YYYY-MM-DD")
			return
		}
		patch.Date = &date
	}

	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	if err := core.Transactions().Update(r.Context(), id, patch); err != nil {
		handleStoreError(w, r, err)
		return
	}
	tx, err := core.Transactions().Get(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "transaction.updated", map[string]any{
		"transaction_id": id,
	})
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) deleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	tombstoneID, err := core.Transactions().Delete(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "transaction.deleted", map[string]any{
		"transaction_id": id,
		"tombstone_id":   tombstoneID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":      id,
		"tombstone_id": tombstoneID,
	})
}
