package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haliltoma/commerce-pricing/internal/common"
	"github.com/haliltoma/commerce-pricing/internal/money"
	"github.com/haliltoma/commerce-pricing/internal/tax"
)

// ConfigLoader supplies the store configuration snapshot for one request.
type ConfigLoader interface {
	LoadConfig(ctx context.Context) (Config, error)
}

// Handler exposes the pricing preview endpoints.
type Handler struct {
	engine *Engine
	loader ConfigLoader
	now    func() time.Time
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Engine *Engine
	Loader ConfigLoader
	Now    func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{engine: cfg.Engine, loader: cfg.Loader, now: now}
}

// Preview handles POST /api/v1/pricing/preview. It prices the submitted cart
// against the current store configuration without persisting anything.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.loader == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var cart Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body", nil)
		return
	}
	if err := validateCart(cart); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}
	cfg, err := h.loader.LoadConfig(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	cfg.Now = h.now().UTC()
	priced, err := h.engine.PriceCart(r.Context(), cart, cfg)
	if err != nil {
		if errors.Is(err, money.ErrCurrencyMismatch) {
			common.JSONError(w, http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", err.Error(), nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": priced})
}

// TaxRequest is the input to the standalone tax endpoint.
type TaxRequest struct {
	Currency string      `json:"currency"`
	Address  tax.Address `json:"address"`
	Lines    []TaxLine   `json:"lines"`
}

// TaxLine is one taxable amount in a TaxRequest.
type TaxLine struct {
	Amount     int64      `json:"amount"`
	TaxClassID *uuid.UUID `json:"taxClassId,omitempty"`
	Taxable    *bool      `json:"taxable,omitempty"`
}

// Tax handles POST /api/v1/pricing/tax. It computes tax for raw amounts
// without running the full cart pipeline.
func (h *Handler) Tax(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var req TaxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body", nil)
		return
	}
	if req.Currency == "" {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "currency is required", nil)
		return
	}
	if len(req.Lines) == 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "at least one line is required", nil)
		return
	}
	cfg, err := h.loader.LoadConfig(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	calc := tax.Calculator{Rates: cfg.TaxRates, PricesIncludeTax: cfg.PricesIncludeTax}
	lines := make([]tax.Line, 0, len(req.Lines))
	for _, ln := range req.Lines {
		taxable := true
		if ln.Taxable != nil {
			taxable = *ln.Taxable
		}
		lines = append(lines, tax.Line{
			Amount:  money.New(ln.Amount, req.Currency),
			ClassID: ln.TaxClassID,
			Taxable: taxable,
		})
	}
	result := calc.CalculateForLines(lines, req.Address)
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func validateCart(cart Cart) error {
	if cart.Currency == "" {
		return errors.New("currency is required")
	}
	if len(cart.Lines) == 0 {
		return errors.New("at least one line is required")
	}
	for _, ln := range cart.Lines {
		if ln.VariantID == uuid.Nil {
			return errors.New("every line needs a variantId")
		}
		if ln.Quantity <= 0 {
			return errors.New("every line needs a positive quantity")
		}
	}
	return nil
}
