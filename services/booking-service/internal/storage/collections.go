package storage

import (
	"context"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/policy"
)

type ServicePatch struct {
	Name  *string
	Price *float64
}

type ProductPatch struct {
	Name        *string
	Price       *float64
	Description *string
	ImageURL    *string
}

func (s *TenantStore) Services(ctx context.Context, tenantID string) ([]model.Service, error) {
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.Services, nil
}

// ReplaceServices stores the full catalog. Entries without an id get
// max+1 in list order.
func (s *TenantStore) ReplaceServices(ctx context.Context, tenantID string, services []model.Service) ([]model.Service, error) {
	if err := validateServices(services); err != nil {
		return nil, err
	}
	t, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		t.Services = assignServiceIDs(services)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t.Services, nil
}

func (s *TenantStore) AddService(ctx context.Context, tenantID, name string, price float64) (model.Service, error) {
	svc := model.Service{Name: name, Price: price}
	if err := validateService(svc); err != nil {
		return model.Service{}, err
	}
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		svc.ID = nextServiceID(t.Services)
		t.Services = append(t.Services, svc)
		return nil
	})
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (s *TenantStore) UpdateService(ctx context.Context, tenantID string, serviceID int, p ServicePatch) (model.Service, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return model.Service{}, apperr.Invalid("name", "must not be empty")
	}
	if p.Price != nil && !validPrice(*p.Price) {
		return model.Service{}, apperr.Invalid("price", "must be a non-negative number")
	}
	var out model.Service
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		for i := range t.Services {
			if t.Services[i].ID != serviceID {
				continue
			}
			if p.Name != nil {
				t.Services[i].Name = *p.Name
			}
			if p.Price != nil {
				t.Services[i].Price = *p.Price
			}
			out = t.Services[i]
			return nil
		}
		return &apperr.NotFoundError{Entity: "service", ID: itoa(serviceID), TenantID: tenantID}
	})
	return out, err
}

func (s *TenantStore) DeleteService(ctx context.Context, tenantID string, serviceID int) error {
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		for i := range t.Services {
			if t.Services[i].ID == serviceID {
				t.Services = append(t.Services[:i], t.Services[i+1:]...)
				return nil
			}
		}
		return &apperr.NotFoundError{Entity: "service", ID: itoa(serviceID), TenantID: tenantID}
	})
	return err
}

func (s *TenantStore) Products(ctx context.Context, tenantID string) ([]model.Product, error) {
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.Products, nil
}

func (s *TenantStore) AddProduct(ctx context.Context, tenantID string, p model.Product) (model.Product, error) {
	if err := validateProduct(p); err != nil {
		return model.Product{}, err
	}
	p.ID = s.newID()
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		t.Products = append(t.Products, p)
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (s *TenantStore) UpdateProduct(ctx context.Context, tenantID, productID string, p ProductPatch) (model.Product, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return model.Product{}, apperr.Invalid("name", "must not be empty")
	}
	if p.Price != nil && !validPrice(*p.Price) {
		return model.Product{}, apperr.Invalid("price", "must be a non-negative number")
	}
	var out model.Product
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		for i := range t.Products {
			pr := &t.Products[i]
			if pr.ID != productID {
				continue
			}
			if p.Name != nil {
				pr.Name = *p.Name
			}
			if p.Price != nil {
				pr.Price = *p.Price
			}
			if p.Description != nil {
				pr.Description = *p.Description
			}
			if p.ImageURL != nil {
				pr.ImageURL = *p.ImageURL
			}
			out = *pr
			return nil
		}
		return &apperr.NotFoundError{Entity: "product", ID: productID, TenantID: tenantID}
	})
	return out, err
}

func (s *TenantStore) DeleteProduct(ctx context.Context, tenantID, productID string) error {
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		for i := range t.Products {
			if t.Products[i].ID == productID {
				t.Products = append(t.Products[:i], t.Products[i+1:]...)
				return nil
			}
		}
		return &apperr.NotFoundError{Entity: "product", ID: productID, TenantID: tenantID}
	})
	return err
}

func (s *TenantStore) AvailabilitySlots(ctx context.Context, tenantID string) ([]model.AvailabilitySlot, error) {
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.AvailabilitySlots, nil
}

// ReplaceAvailabilitySlots validates the whole set before anything is
// written; one bad slot rejects the request.
func (s *TenantStore) ReplaceAvailabilitySlots(ctx context.Context, tenantID string, slots []model.AvailabilitySlot) ([]model.AvailabilitySlot, error) {
	if err := policy.ValidateSlots(slots); err != nil {
		return nil, err
	}
	t, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		t.AvailabilitySlots = s.assignSlotIDs(slots)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t.AvailabilitySlots, nil
}

func (s *TenantStore) AddAvailabilitySlot(ctx context.Context, tenantID string, slot model.AvailabilitySlot) (model.AvailabilitySlot, error) {
	if err := policy.ValidateSlot(slot); err != nil {
		return model.AvailabilitySlot{}, err
	}
	slot.ID = s.newID()
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		next := append(append([]model.AvailabilitySlot(nil), t.AvailabilitySlots...), slot)
		if err := policy.ValidateSlots(next); err != nil {
			return err
		}
		t.AvailabilitySlots = next
		return nil
	})
	if err != nil {
		return model.AvailabilitySlot{}, err
	}
	return slot, nil
}

func (s *TenantStore) DeleteAvailabilitySlot(ctx context.Context, tenantID, slotID string) error {
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		for i := range t.AvailabilitySlots {
			if t.AvailabilitySlots[i].ID == slotID {
				t.AvailabilitySlots = append(t.AvailabilitySlots[:i], t.AvailabilitySlots[i+1:]...)
				return nil
			}
		}
		return &apperr.NotFoundError{Entity: "availability slot", ID: slotID, TenantID: tenantID}
	})
	return err
}

func (s *TenantStore) Appointments(ctx context.Context, tenantID string) ([]model.Appointment, error) {
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.Appointments, nil
}

func (s *TenantStore) AppendAppointment(ctx context.Context, tenantID string, a model.Appointment) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		t.Appointments = append(t.Appointments, a)
		return nil
	})
	return err
}

func (s *TenantStore) PendingBookings(ctx context.Context, tenantID string) ([]model.PendingBooking, error) {
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.PendingBookings, nil
}

// PendingAction says how an open reservation is settled.
type PendingAction string

const (
	// PendingCommit records the booking under the provider's event id.
	PendingCommit PendingAction = "commit"
	// PendingDiscard drops the booking and frees its time.
	PendingDiscard PendingAction = "discard"
)

type PendingResolution struct {
	Action PendingAction
	// AppointmentID is the provider's event id. Required to commit.
	AppointmentID string
}

// ResolvePending settles a pending booking the booking path could not
// finish, whatever its status. The marker is removed in the same write that
// records the appointment, so the time it held is either booked or free
// afterwards. The returned appointment is nil on discard.
func (s *TenantStore) ResolvePending(ctx context.Context, tenantID, pendingID string, res PendingResolution) (*model.Appointment, error) {
	res.AppointmentID = strings.TrimSpace(res.AppointmentID)
	switch res.Action {
	case PendingCommit:
		if res.AppointmentID == "" {
			return nil, apperr.Invalid("appointmentId", "is required to commit")
		}
	case PendingDiscard:
	default:
		return nil, apperr.Invalid("action", "must be %q or %q", PendingCommit, PendingDiscard)
	}

	var recorded *model.Appointment
	_, err := s.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		recorded = nil
		i := slices.IndexFunc(t.PendingBookings, func(p model.PendingBooking) bool { return p.ID == pendingID })
		if i < 0 {
			return &apperr.NotFoundError{Entity: "pending booking", ID: pendingID, TenantID: tenantID}
		}
		p := t.PendingBookings[i]
		t.PendingBookings = slices.Delete(t.PendingBookings, i, i+1)
		if res.Action == PendingDiscard {
			return nil
		}
		if slices.ContainsFunc(t.Appointments, func(a model.Appointment) bool { return a.ID == res.AppointmentID }) {
			return apperr.Invalid("appointmentId", "%s is already recorded", res.AppointmentID)
		}
		appt := model.Appointment{
			ID:             res.AppointmentID,
			Date:           p.Date,
			Time:           p.Time,
			Service:        p.Service,
			CustomerName:   p.CustomerName,
			CustomerPhone:  p.CustomerPhone,
			ContactID:      p.ContactID,
			IdempotencyKey: p.IdempotencyKey,
			CreatedAt:      p.CreatedAt,
		}
		t.Appointments = append(t.Appointments, appt)
		recorded = &appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func validateService(svc model.Service) error {
	if strings.TrimSpace(svc.Name) == "" {
		return apperr.Invalid("name", "is required")
	}
	if !validPrice(svc.Price) {
		return apperr.Invalid("price", "must be a non-negative number")
	}
	return nil
}

func validateServices(services []model.Service) error {
	ids := make(map[int]struct{}, len(services))
	for _, svc := range services {
		if err := validateService(svc); err != nil {
			return err
		}
		if svc.ID < 0 {
			return apperr.Invalid("id", "service ids must be positive")
		}
		if svc.ID == 0 {
			continue
		}
		if _, dup := ids[svc.ID]; dup {
			return apperr.Invalid("id", "duplicate service id %d", svc.ID)
		}
		ids[svc.ID] = struct{}{}
	}
	return nil
}

func validateProduct(p model.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Invalid("name", "is required")
	}
	if !validPrice(p.Price) {
		return apperr.Invalid("price", "must be a non-negative number")
	}
	return nil
}

func validPrice(p float64) bool {
	return p >= 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// nextServiceID is one more than the largest id in use, 1 for an empty list.
func nextServiceID(services []model.Service) int {
	next := 1
	for _, svc := range services {
		if svc.ID >= next {
			next = svc.ID + 1
		}
	}
	return next
}

func assignServiceIDs(in []model.Service) []model.Service {
	out := append([]model.Service(nil), in...)
	for i := range out {
		if out[i].ID == 0 {
			out[i].ID = nextServiceID(out)
		}
	}
	return out
}

func (s *TenantStore) assignProductIDs(in []model.Product) []model.Product {
	out := append([]model.Product(nil), in...)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = s.newID()
		}
	}
	return out
}

func (s *TenantStore) assignSlotIDs(in []model.AvailabilitySlot) []model.AvailabilitySlot {
	out := append([]model.AvailabilitySlot(nil), in...)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = s.newID()
		}
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
