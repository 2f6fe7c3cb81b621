// Package wow uploads hourly rain observations to the Met Office Weather
// Observations Website.
//
// https://wow.metoffice.gov.uk/support/dataformats
//
// WOW accepts a GET to /automaticreading with the site id, the site
// authentication key, the UTC observation time and the software type, plus
// at least one weather field. Rain is reported in inches: rainin is the
// rain since the previous observation, dailyrainin the rain so far today.
package wow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"
	logger "github.com/sirupsen/logrus"

	"github.com/sweeney/rain-gauge/internal/rain"
)

// DefaultURL is the WOW automatic reading endpoint.
const DefaultURL = "https://wow.metoffice.gov.uk/automaticreading"

// MMPerInch converts mm to inches.
const MMPerInch = 25.4

// queueSize bounds the number of pending uploads.
const queueSize = 24

// Observation is one WOW upload.
type Observation struct {
	SiteID       string  `url:"siteid"`
	AuthKey      string  `url:"siteAuthenticationKey"`
	DateUTC      string  `url:"dateutc"`
	SoftwareType string  `url:"softwaretype,omitempty"`
	RainIn       float64 `url:"rainin"`
	DailyRainIn  float64 `url:"dailyrainin"`
}

// Config holds the WOW site credentials.
type Config struct {
	URL          string
	SiteID       string
	AuthKey      string
	SoftwareType string
	Timeout      time.Duration
}

// Client uploads observations.
type Client struct {
	cfg  Config
	http *http.Client
	ch   chan Observation
}

// NewClient creates a Client. An empty URL uses DefaultURL.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		ch:   make(chan Observation, queueSize),
	}
}

// MMToIn converts mm to inches.
func MMToIn(mm float64) float64 {
	return mm / MMPerInch
}

// FromEvent builds the observation for a rollover. rainin is the hour that
// just completed. At a day rollover dailyrainin carries the completed day's
// total, since the new day's running total is still zero.
func (c *Client) FromEvent(e rain.Event) Observation {
	daily := e.Today
	if e.Type == rain.EventDayRollover {
		daily = e.Yesterday
	}
	return Observation{
		SiteID:       c.cfg.SiteID,
		AuthKey:      c.cfg.AuthKey,
		DateUTC:      e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		SoftwareType: c.cfg.SoftwareType,
		RainIn:       MMToIn(e.LastHour),
		DailyRainIn:  MMToIn(daily),
	}
}

// Upload sends one observation.
func (c *Client) Upload(ctx context.Context, obs Observation) error {
	vals, err := query.Values(obs)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"?"+vals.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload: HTTP %s", resp.Status)
	}
	return nil
}

// Submit queues the observation for e without blocking. When the queue is
// full the observation is dropped.
func (c *Client) Submit(e rain.Event) bool {
	select {
	case c.ch <- c.FromEvent(e):
		return true
	default:
		logger.Warn("wow: upload queue full, dropping observation")
		return false
	}
}

// Run uploads queued observations until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-c.ch:
			if err := c.Upload(ctx, obs); err != nil {
				logger.Errorf("wow: %v", err)
				continue
			}
			logger.Infof("wow: uploaded rainin=%.3f dailyrainin=%.3f", obs.RainIn, obs.DailyRainIn)
		}
	}
}
