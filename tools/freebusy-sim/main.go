// Command freebusy-sim serves a local stand-in for the calendar provider so
// the booking service can be run end to end without real credentials.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/md-rashed-zaman/tenantbook/libs/config"
	"github.com/md-rashed-zaman/tenantbook/libs/httpx"
	"github.com/md-rashed-zaman/tenantbook/libs/runtime"
)

func main() {
	var (
		addr       = flag.String("addr", config.String("SIM_ADDR", ":8099"), "listen address")
		token      = flag.String("token", config.String("SIM_API_TOKEN", ""), "accepted bearer token (empty accepts any)")
		tz         = flag.String("tz", config.String("BUSINESS_TIMEZONE", "Asia/Jerusalem"), "calendar time zone")
		step       = flag.Duration("step", 30*time.Minute, "slot granularity")
		open       = flag.Int("open", 8, "first free hour of the day")
		closeHour  = flag.Int("close", 20, "hour the calendar closes")
		failStatus = flag.Int("fail-create", 0, "status returned by every create call (0 disables)")
		latency    = flag.Duration("latency", 0, "delay added to every response")
	)
	flag.Parse()

	logger := runtime.NewLogger("freebusy-sim", config.String("LOG_LEVEL", "info"))
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fatal(err.Error())
	}
	if *open < 0 || *closeHour > 24 || *open >= *closeHour || *step <= 0 {
		fatal("invalid -open/-close/-step")
	}

	cal := &calendar{loc: loc, step: *step, open: *open, close: *closeHour, booked: map[string]bool{}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if *latency > 0 {
				time.Sleep(*latency)
			}
			if *token != "" && req.Header.Get("Authorization") != "Bearer "+*token {
				httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "Invalid JWT"})
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/calendars/{calendarID}/free-slots", cal.freeSlots)
	r.Post("/calendars/events/appointments", func(w http.ResponseWriter, req *http.Request) {
		if *failStatus != 0 {
			httpx.WriteJSON(w, *failStatus, map[string]any{"statusCode": *failStatus, "message": "simulated failure"})
			return
		}
		cal.create(w, req)
	})

	logger.Info("freebusy simulator listening", "addr", *addr, "timezone", loc.String())
	srv := &http.Server{Addr: *addr, Handler: httpx.Chain(r, httpx.WithAccessLog(logger)), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		fatal(err.Error())
	}
}

type calendar struct {
	loc         *time.Location
	step        time.Duration
	open, close int

	mu     sync.Mutex
	booked map[string]bool // RFC3339 start times
}

func (c *calendar) freeSlots(w http.ResponseWriter, r *http.Request) {
	start, err1 := millis(r.URL.Query().Get("startDate"))
	end, err2 := millis(r.URL.Query().Get("endDate"))
	if err1 != nil || err2 != nil || !end.After(start) {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"statusCode": 422, "message": "startDate and endDate must be epoch millis"})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]any{"traceId": uuid.NewString()}
	for day := start.In(c.loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		y, m, d := day.Date()
		var slots []string
		for t := time.Date(y, m, d, c.open, 0, 0, 0, c.loc); t.Hour() < c.close && t.Day() == d; t = t.Add(c.step) {
			if t.Before(start) || !t.Before(end) {
				continue
			}
			s := t.Format(time.RFC3339)
			if !c.booked[s] {
				slots = append(slots, s)
			}
		}
		if len(slots) > 0 {
			out[day.Format("2006-01-02")] = map[string]any{"slots": slots}
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (c *calendar) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CalendarID string `json:"calendarId"`
		StartTime  string `json:"startTime"`
		EndTime    string `json:"endTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": "invalid body"})
		return
	}
	start, err := time.Parse(time.RFC3339, body.StartTime)
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": "invalid startTime"})
		return
	}
	key := start.In(c.loc).Format(time.RFC3339)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.booked[key] {
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{"statusCode": 409, "message": "The slot you have selected is no longer available."})
		return
	}
	c.booked[key] = true
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":         uuid.NewString(),
		"calendarId": body.CalendarID,
		"startTime":  body.StartTime,
		"endTime":    body.EndTime,
		"status":     "booked",
	})
}

func millis(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(n), nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
