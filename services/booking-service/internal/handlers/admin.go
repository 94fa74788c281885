package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/tenantbook/libs/httpx"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/storage"
)

// AdminHandler is the tenant administration surface. Every write goes
// through the TenantStore so per-tenant serialization applies.
type AdminHandler struct {
	store  *storage.TenantStore
	logger *slog.Logger
}

func NewAdminHandler(store *storage.TenantStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger}
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/", h.ListTenants)
	r.Post("/", h.CreateTenant)
	r.Route("/{tenantID}", func(r chi.Router) {
		r.Get("/", h.GetTenant)
		r.Patch("/", h.UpdateTenant)
		r.Delete("/", h.DeleteTenant)

		r.Get("/services", h.ListServices)
		r.Put("/services", h.ReplaceServices)
		r.Post("/services", h.AddService)
		r.Patch("/services/{serviceID}", h.UpdateService)
		r.Delete("/services/{serviceID}", h.DeleteService)

		r.Get("/availability", h.ListAvailability)
		r.Put("/availability", h.ReplaceAvailability)
		r.Post("/availability", h.AddAvailability)
		r.Delete("/availability/{slotID}", h.DeleteAvailability)

		r.Get("/products", h.ListProducts)
		r.Post("/products", h.AddProduct)
		r.Patch("/products/{productID}", h.UpdateProduct)
		r.Delete("/products/{productID}", h.DeleteProduct)

		r.Get("/appointments", h.ListAppointments)
		r.Get("/pending-bookings", h.ListPendingBookings)
		r.Post("/pending-bookings/{pendingID}/resolve", h.ResolvePendingBooking)
	})
}

type tenantRequest struct {
	Name           string        `json:"name" validate:"required"`
	OwnerID        string        `json:"ownerId"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	LocationID     *string       `json:"locationId"`
	CalendarID     *string       `json:"calendarId"`
	APIToken       *string       `json:"apiToken"`
	Icon           *model.Icon   `json:"icon"`
	Colors         *model.Colors `json:"colors"`
	Font           *string       `json:"font"`
	BookingMessage *string       `json:"bookingMessage" validate:"omitempty,max=2000"`
	IsStoreEnabled *bool         `json:"isStoreEnabled"`
}

// tenantPatchRequest carries only the fields the caller sent; a nil field
// leaves the stored value untouched.
type tenantPatchRequest struct {
	Name              *string                   `json:"name" validate:"omitempty,min=1"`
	OwnerID           *string                   `json:"ownerId"`
	Username          *string                   `json:"username"`
	Password          *string                   `json:"password"`
	LocationID        *string                   `json:"locationId"`
	CalendarID        *string                   `json:"calendarId"`
	APIToken          *string                   `json:"apiToken"`
	Icon              *model.Icon               `json:"icon"`
	Colors            *model.Colors             `json:"colors"`
	Font              *string                   `json:"font"`
	BookingMessage    *string                   `json:"bookingMessage" validate:"omitempty,max=2000"`
	IsStoreEnabled    *bool                     `json:"isStoreEnabled"`
	Services          *[]model.Service          `json:"services"`
	Products          *[]model.Product          `json:"products"`
	AvailabilitySlots *[]model.AvailabilitySlot `json:"availabilitySlots"`
}

type serviceRequest struct {
	ID    int      `json:"id"`
	Name  string   `json:"name" validate:"required"`
	Price *float64 `json:"price" validate:"required,gte=0"`
}

type servicePatchRequest struct {
	Name  *string  `json:"name" validate:"omitempty,min=1"`
	Price *float64 `json:"price" validate:"omitempty,gte=0"`
}

type slotRequest struct {
	ID         string  `json:"id"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string  `json:"startTime" validate:"required"`
	EndTime    string  `json:"endTime" validate:"required"`
	BreakStart *string `json:"breakStart"`
	BreakEnd   *string `json:"breakEnd"`
}

func (s slotRequest) model() model.AvailabilitySlot {
	return model.AvailabilitySlot{
		ID:         s.ID,
		Date:       s.Date,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		BreakStart: s.BreakStart,
		BreakEnd:   s.BreakEnd,
	}
}

type productRequest struct {
	Name        string   `json:"name" validate:"required"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	Description string   `json:"description" validate:"max=4000"`
	ImageURL    string   `json:"imageUrl" validate:"omitempty,url"`
}

// pendingResolveRequest settles a stuck reservation. appointmentId is the
// event id the provider issued and is needed to commit.
type pendingResolveRequest struct {
	Action        string `json:"action" validate:"required,oneof=commit discard"`
	AppointmentID string `json:"appointmentId" validate:"required_if=Action commit"`
}

type productPatchRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Description *string  `json:"description" validate:"omitempty,max=4000"`
	ImageURL    *string  `json:"imageUrl" validate:"omitempty,url"`
}

func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tenants)
}

func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.store.Create(r.Context(), storage.NewTenant{
		Name:           req.Name,
		OwnerID:        req.OwnerID,
		Username:       req.Username,
		Password:       req.Password,
		LocationID:     req.LocationID,
		CalendarID:     req.CalendarID,
		APIToken:       req.APIToken,
		Icon:           req.Icon,
		Colors:         req.Colors,
		Font:           req.Font,
		BookingMessage: req.BookingMessage,
		IsStoreEnabled: req.IsStoreEnabled,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "tenant created", "tenant_id", t.ID)
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.store.Update(r.Context(), chi.URLParam(r, "tenantID"), storage.TenantPatch{
		Name:              req.Name,
		OwnerID:           req.OwnerID,
		Username:          req.Username,
		Password:          req.Password,
		LocationID:        req.LocationID,
		CalendarID:        req.CalendarID,
		APIToken:          req.APIToken,
		Icon:              req.Icon,
		Colors:            req.Colors,
		Font:              req.Font,
		BookingMessage:    req.BookingMessage,
		IsStoreEnabled:    req.IsStoreEnabled,
		Services:          req.Services,
		Products:          req.Products,
		AvailabilitySlots: req.AvailabilitySlots,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")
	ok, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeError(w, r, h.logger, &apperr.NotFoundError{Entity: "tenant", ID: id})
		return
	}
	h.logger.InfoContext(r.Context(), "tenant deleted", "tenant_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.Services(r.Context(), chi.URLParam(r, "tenantID"))
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) ReplaceServices(w http.ResponseWriter, r *http.Request) {
	var req []serviceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	services := make([]model.Service, 0, len(req))
	for _, s := range req {
		services = append(services, model.Service{ID: s.ID, Name: s.Name, Price: *s.Price})
	}
	out, err := h.store.ReplaceServices(r.Context(), chi.URLParam(r, "tenantID"), services)
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) AddService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.store.AddService(r.Context(), chi.URLParam(r, "tenantID"), req.Name, *req.Price)
	respond(w, r, h.logger, http.StatusCreated, out, err)
}

func (h *AdminHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := serviceID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req servicePatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.store.UpdateService(r.Context(), chi.URLParam(r, "tenantID"), id, storage.ServicePatch{Name: req.Name, Price: req.Price})
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, err := serviceID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	noContent(w, r, h.logger, h.store.DeleteService(r.Context(), chi.URLParam(r, "tenantID"), id))
}

func (h *AdminHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.AvailabilitySlots(r.Context(), chi.URLParam(r, "tenantID"))
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) ReplaceAvailability(w http.ResponseWriter, r *http.Request) {
	var req []slotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	slots := make([]model.AvailabilitySlot, 0, len(req))
	for _, s := range req {
		slots = append(slots, s.model())
	}
	out, err := h.store.ReplaceAvailabilitySlots(r.Context(), chi.URLParam(r, "tenantID"), slots)
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) AddAvailability(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.store.AddAvailabilitySlot(r.Context(), chi.URLParam(r, "tenantID"), req.model())
	respond(w, r, h.logger, http.StatusCreated, out, err)
}

func (h *AdminHandler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteAvailabilitySlot(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "slotID"))
	noContent(w, r, h.logger, err)
}

func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.Products(r.Context(), chi.URLParam(r, "tenantID"))
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.store.AddProduct(r.Context(), chi.URLParam(r, "tenantID"), model.Product{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	})
	respond(w, r, h.logger, http.StatusCreated, out, err)
}

func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out, err := h.store.UpdateProduct(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "productID"), storage.ProductPatch{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	})
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteProduct(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "productID"))
	noContent(w, r, h.logger, err)
}

func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.Appointments(r.Context(), chi.URLParam(r, "tenantID"))
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) ListPendingBookings(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.PendingBookings(r.Context(), chi.URLParam(r, "tenantID"))
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *AdminHandler) ResolvePendingBooking(w http.ResponseWriter, r *http.Request) {
	var req pendingResolveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tenantID, pendingID := chi.URLParam(r, "tenantID"), chi.URLParam(r, "pendingID")
	appt, err := h.store.ResolvePending(r.Context(), tenantID, pendingID, storage.PendingResolution{
		Action:        storage.PendingAction(req.Action),
		AppointmentID: req.AppointmentID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "pending booking resolved",
		"tenant_id", tenantID,
		"pending_id", pendingID,
		"action", req.Action,
	)
	if appt == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func serviceID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "serviceID")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("serviceId", "%q is not a positive integer", raw)
	}
	return id, nil
}

func respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v any, err error) {
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	httpx.WriteJSON(w, status, v)
}

func noContent(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
