package freebusy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
)

const (
	DefaultBaseURL    = "https://services.leadconnectorhq.com"
	DefaultAPIVersion = "2021-04-15"

	maxErrorBody = 2 << 10
)

var dateKey = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the LeadConnector implementation of Gateway. Credentials are
// per call; the client itself holds none.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{baseURL: baseURL, apiVersion: version, httpClient: httpClient}
}

type slotsDay struct {
	Slots []string `json:"slots"`
}

func (c *Client) FreeSlots(ctx context.Context, q FreeSlotsQuery) (map[string][]string, error) {
	const op = "free slots"
	params := url.Values{}
	params.Set("startDate", strconv.FormatInt(q.Start.UnixMilli(), 10))
	params.Set("endDate", strconv.FormatInt(q.End.UnixMilli(), 10))
	if q.Timezone != "" {
		params.Set("timezone", q.Timezone)
	}
	path := "/calendars/" + url.PathEscape(q.CalendarID) + "/free-slots?" + params.Encode()

	body, err := c.do(ctx, op, http.MethodGet, path, q.APIToken, nil)
	if err != nil {
		return nil, err
	}

	// The payload mixes date keys with bookkeeping fields such as traceId.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &apperr.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	out := make(map[string][]string, len(raw))
	for key, msg := range raw {
		if !dateKey.MatchString(key) {
			continue
		}
		var day slotsDay
		if err := json.Unmarshal(msg, &day); err != nil {
			return nil, &apperr.UpstreamError{Op: op, Err: fmt.Errorf("decode slots for %s: %w", key, err)}
		}
		out[key] = day.Slots
	}
	return out, nil
}

type createAppointmentBody struct {
	CalendarID          string `json:"calendarId"`
	LocationID          string `json:"locationId"`
	ContactID           string `json:"contactId"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	Title               string `json:"title"`
	MeetingLocationType string `json:"meetingLocationType"`
	AppointmentStatus   string `json:"appointmentStatus"`
}

func (c *Client) CreateAppointment(ctx context.Context, cmd AppointmentCommand) (CreatedEvent, error) {
	const op = "create appointment"
	payload, err := json.Marshal(createAppointmentBody{
		CalendarID:          cmd.CalendarID,
		LocationID:          cmd.LocationID,
		ContactID:           cmd.ContactID,
		StartTime:           cmd.StartTime.Format(time.RFC3339),
		EndTime:             cmd.EndTime.Format(time.RFC3339),
		Title:               cmd.Title,
		MeetingLocationType: "default",
		AppointmentStatus:   "new",
	})
	if err != nil {
		return CreatedEvent{}, fmt.Errorf("encode appointment: %w", err)
	}
	body, err := c.do(ctx, op, http.MethodPost, "/calendars/events/appointments", cmd.APIToken, payload)
	if err != nil {
		return CreatedEvent{}, err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return CreatedEvent{}, &apperr.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return CreatedEvent{ID: resp.ID}, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &apperr.UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.UpstreamError{Op: op, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.UpstreamError{Op: op, StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &apperr.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
