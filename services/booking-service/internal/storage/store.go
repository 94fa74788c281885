// Package storage keeps tenant documents and routes every change through a
// serialized per-tenant read-modify-write.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/policy"
)

type TenantStore struct {
	backend Backend
	newID   func() string
}

func NewTenantStore(backend Backend) *TenantStore {
	return &TenantStore{backend: backend, newID: uuid.NewString}
}

// NewTenant is the input of Create.
type NewTenant struct {
	Name           string
	OwnerID        string
	Username       string
	Password       string
	LocationID     *string
	CalendarID     *string
	APIToken       *string
	Icon           *model.Icon
	Colors         *model.Colors
	Font           *string
	BookingMessage *string
	IsStoreEnabled *bool
}

// TenantPatch replaces every non-nil field. The id is not patchable and
// appointments can only be appended.
type TenantPatch struct {
	Name              *string
	OwnerID           *string
	Username          *string
	Password          *string
	LocationID        *string
	CalendarID        *string
	APIToken          *string
	Icon              *model.Icon
	Colors            *model.Colors
	Font              *string
	BookingMessage    *string
	IsStoreEnabled    *bool
	Services          *[]model.Service
	Products          *[]model.Product
	AvailabilitySlots *[]model.AvailabilitySlot
}

func (s *TenantStore) List(ctx context.Context) ([]model.Tenant, error) {
	tenants, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (model.Tenant, error) {
	t, err := s.backend.Get(ctx, id)
	if err != nil {
		return model.Tenant{}, s.wrap("get tenant", id, err)
	}
	return t, nil
}

func (s *TenantStore) Create(ctx context.Context, in NewTenant) (model.Tenant, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Tenant{}, apperr.Invalid("name", "is required")
	}
	if in.Icon != nil && !in.Icon.Valid() {
		return model.Tenant{}, apperr.Invalid("icon", "unknown icon %q", *in.Icon)
	}
	t := model.Tenant{
		ID:             s.newID(),
		Name:           in.Name,
		OwnerID:        in.OwnerID,
		Username:       in.Username,
		Password:       in.Password,
		LocationID:     in.LocationID,
		CalendarID:     in.CalendarID,
		APIToken:       in.APIToken,
		Icon:           in.Icon,
		Colors:         in.Colors,
		Font:           in.Font,
		BookingMessage: in.BookingMessage,
		IsStoreEnabled: in.IsStoreEnabled,
	}
	t.Normalize()
	t = t.Clone()
	if err := s.backend.Insert(ctx, t); err != nil {
		return model.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) Update(ctx context.Context, id string, p TenantPatch) (model.Tenant, error) {
	if err := validatePatch(p); err != nil {
		return model.Tenant{}, err
	}
	return s.Mutate(ctx, id, func(t *model.Tenant) error {
		s.applyPatch(t, p)
		return nil
	})
}

// Mutate is the single write path. fn sees the latest committed tenant.
func (s *TenantStore) Mutate(ctx context.Context, id string, fn MutateFunc) (model.Tenant, error) {
	t, err := s.backend.Mutate(ctx, id, func(t *model.Tenant) error {
		if err := fn(t); err != nil {
			return err
		}
		t.ID = id
		t.Normalize()
		return nil
	})
	if err != nil {
		return model.Tenant{}, s.wrap("update tenant", id, err)
	}
	return t, nil
}

func (s *TenantStore) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.backend.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete tenant %s: %w", id, err)
	}
	return ok, nil
}

func (s *TenantStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *TenantStore) wrap(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &apperr.NotFoundError{Entity: "tenant", ID: id, TenantID: id}
	}
	var ve *apperr.ValidationError
	var nf *apperr.NotFoundError
	if errors.As(err, &ve) || errors.As(err, &nf) {
		return err
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func validatePatch(p TenantPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return apperr.Invalid("name", "must not be empty")
	}
	if p.Icon != nil && !p.Icon.Valid() {
		return apperr.Invalid("icon", "unknown icon %q", *p.Icon)
	}
	if p.Services != nil {
		if err := validateServices(*p.Services); err != nil {
			return err
		}
	}
	if p.Products != nil {
		for _, pr := range *p.Products {
			if err := validateProduct(pr); err != nil {
				return err
			}
		}
	}
	if p.AvailabilitySlots != nil {
		if err := policy.ValidateSlots(*p.AvailabilitySlots); err != nil {
			return err
		}
	}
	return nil
}

func (s *TenantStore) applyPatch(t *model.Tenant, p TenantPatch) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.Name, p.Name)
	set(&t.OwnerID, p.OwnerID)
	set(&t.Username, p.Username)
	set(&t.Password, p.Password)
	if p.LocationID != nil {
		t.LocationID = p.LocationID
	}
	if p.CalendarID != nil {
		t.CalendarID = p.CalendarID
	}
	if p.APIToken != nil {
		t.APIToken = p.APIToken
	}
	if p.Icon != nil {
		t.Icon = p.Icon
	}
	if p.Colors != nil {
		t.Colors = p.Colors
	}
	if p.Font != nil {
		t.Font = p.Font
	}
	if p.BookingMessage != nil {
		t.BookingMessage = p.BookingMessage
	}
	if p.IsStoreEnabled != nil {
		t.IsStoreEnabled = p.IsStoreEnabled
	}
	if p.Services != nil {
		t.Services = assignServiceIDs(*p.Services)
	}
	if p.Products != nil {
		t.Products = s.assignProductIDs(*p.Products)
	}
	if p.AvailabilitySlots != nil {
		t.AvailabilitySlots = s.assignSlotIDs(*p.AvailabilitySlots)
	}
	// The patch pointers belong to the caller; detach them from the record.
	*t = t.Clone()
}
