package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/tenantbook/libs/httpx"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

type TenantGetter interface {
	Get(ctx context.Context, id string) (model.Tenant, error)
}

type SlotResolver interface {
	Resolve(ctx context.Context, tenantID, date string) (availability.Result, error)
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (booking.Outcome, error)
}

// PublicHandler serves the customer-facing booking page.
type PublicHandler struct {
	tenants  TenantGetter
	resolver SlotResolver
	booker   Booker
	logger   *slog.Logger
}

func NewPublicHandler(tenants TenantGetter, resolver SlotResolver, booker Booker, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{tenants: tenants, resolver: resolver, booker: booker, logger: logger}
}

func (h *PublicHandler) Routes(r chi.Router) {
	r.Get("/{tenantID}/profile", h.Profile)
	r.Get("/{tenantID}/slots", h.Slots)
	r.Post("/{tenantID}/book", h.Book)
}

// profileResponse never exposes credentials or calendar linkage.
type profileResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	BookingMessage *string         `json:"bookingMessage,omitempty"`
	Icon           *model.Icon     `json:"icon,omitempty"`
	Colors         *model.Colors   `json:"colors,omitempty"`
	Font           *string         `json:"font,omitempty"`
	Services       []model.Service `json:"services"`
	Products       []model.Product `json:"products"`
	BookingEnabled bool            `json:"bookingEnabled"`
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

type bookRequest struct {
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"time" validate:"required,datetime=15:04"`
	Service       string `json:"service" validate:"required"`
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	CustomerPhone string `json:"customerPhone" validate:"max=32"`
	ContactID     string `json:"contactId" validate:"required"`
}

type bookResponse struct {
	State       booking.State     `json:"state"`
	Appointment model.Appointment `json:"appointment"`
	Replayed    bool              `json:"replayed,omitempty"`
}

func (h *PublicHandler) Profile(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := profileResponse{
		ID:             t.ID,
		Name:           t.Name,
		BookingMessage: t.BookingMessage,
		Icon:           t.Icon,
		Colors:         t.Colors,
		Font:           t.Font,
		Services:       t.Services,
		Products:       []model.Product{},
		BookingEnabled: len(t.MissingLinkage(true)) == 0,
	}
	if t.IsStoreEnabled != nil && *t.IsStoreEnabled {
		resp.Products = t.Products
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, r, h.logger, apperr.Invalid("date", "is required"))
		return
	}
	res, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "tenantID"), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Date: res.Date, Times: res.Times})
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.booker.Book(r.Context(), booking.Request{
		TenantID:       chi.URLParam(r, "tenantID"),
		Date:           req.Date,
		Time:           req.Time,
		Service:        req.Service,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		ContactID:      req.ContactID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, bookResponse{State: out.State, Appointment: out.Appointment, Replayed: out.Replayed})
}
