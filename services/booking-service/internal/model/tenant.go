package model

// Tenant is one business and everything it owns. It is stored and
// transported as a single JSON document.
//
// Optional scalars are pointers so that an absent value (nil, key omitted)
// stays distinguishable from an explicitly empty one.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	OwnerID  string `json:"ownerId"`
	Username string `json:"username"`
	Password string `json:"password"`

	LocationID *string `json:"locationId,omitempty"`
	CalendarID *string `json:"calendarId,omitempty"`
	APIToken   *string `json:"apiToken,omitempty"`

	Icon   *Icon   `json:"icon,omitempty"`
	Colors *Colors `json:"colors,omitempty"`
	Font   *string `json:"font,omitempty"`

	BookingMessage *string `json:"bookingMessage,omitempty"`
	IsStoreEnabled *bool   `json:"isStoreEnabled,omitempty"`

	Services          []Service          `json:"services"`
	Products          []Product          `json:"products"`
	AvailabilitySlots []AvailabilitySlot `json:"availabilitySlots"`
	Appointments      []Appointment      `json:"appointments"`
	PendingBookings   []PendingBooking   `json:"pendingBookings"`
}

type Colors struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
	Text      string `json:"text"`
}

// Icon is a closed set of presentation icons.
type Icon string

const (
	IconScissors Icon = "scissors"
	IconSparkles Icon = "sparkles"
	IconHeart    Icon = "heart"
	IconStar     Icon = "star"
	IconFlower   Icon = "flower"
	IconBrush    Icon = "brush"
	IconSpa      Icon = "spa"
	IconSmile    Icon = "smile"
)

func (i Icon) Valid() bool {
	switch i {
	case IconScissors, IconSparkles, IconHeart, IconStar, IconFlower, IconBrush, IconSpa, IconSmile:
		return true
	}
	return false
}

type Service struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	ImageURL    string  `json:"imageUrl"`
}

// Linkage fields, by their JSON names.
const (
	LinkAPIToken   = "apiToken"
	LinkCalendarID = "calendarId"
	LinkLocationID = "locationId"
)

// MissingLinkage returns the external calendar fields that are absent or
// empty. Reading free slots needs the token and calendar; creating an
// appointment also needs the location, which is only checked when
// forBooking is set.
func (t *Tenant) MissingLinkage(forBooking bool) []string {
	var missing []string
	if !nonEmpty(t.APIToken) {
		missing = append(missing, LinkAPIToken)
	}
	if !nonEmpty(t.CalendarID) {
		missing = append(missing, LinkCalendarID)
	}
	if forBooking && !nonEmpty(t.LocationID) {
		missing = append(missing, LinkLocationID)
	}
	return missing
}

// ServiceByName returns the catalog entry with exactly this name.
func (t *Tenant) ServiceByName(name string) (Service, bool) {
	for _, s := range t.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// Normalize replaces nil collections with empty ones so they encode as [].
func (t *Tenant) Normalize() {
	if t.Services == nil {
		t.Services = []Service{}
	}
	if t.Products == nil {
		t.Products = []Product{}
	}
	if t.AvailabilitySlots == nil {
		t.AvailabilitySlots = []AvailabilitySlot{}
	}
	if t.Appointments == nil {
		t.Appointments = []Appointment{}
	}
	if t.PendingBookings == nil {
		t.PendingBookings = []PendingBooking{}
	}
}

// Clone returns a deep copy; mutations of the copy never reach the original.
func (t Tenant) Clone() Tenant {
	c := t
	c.LocationID = cloneString(t.LocationID)
	c.CalendarID = cloneString(t.CalendarID)
	c.APIToken = cloneString(t.APIToken)
	c.Font = cloneString(t.Font)
	c.BookingMessage = cloneString(t.BookingMessage)
	if t.Icon != nil {
		v := *t.Icon
		c.Icon = &v
	}
	if t.Colors != nil {
		v := *t.Colors
		c.Colors = &v
	}
	if t.IsStoreEnabled != nil {
		v := *t.IsStoreEnabled
		c.IsStoreEnabled = &v
	}
	c.Services = append([]Service(nil), t.Services...)
	c.Products = append([]Product(nil), t.Products...)
	c.AvailabilitySlots = make([]AvailabilitySlot, len(t.AvailabilitySlots))
	for i, s := range t.AvailabilitySlots {
		c.AvailabilitySlots[i] = s.clone()
	}
	c.Appointments = append([]Appointment(nil), t.Appointments...)
	c.PendingBookings = append([]PendingBooking(nil), t.PendingBookings...)
	c.Normalize()
	return c
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
