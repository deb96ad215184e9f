// Package history fetches prior conversation messages from the GoHighLevel
// (LeadConnector) CRM and normalizes them for display and model context.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
	"github.com/capitalize-ai/realty-agent/pkg/metrics"
	"github.com/capitalize-ai/realty-agent/pkg/tracing"
)

const (
	// DefaultBaseURL is the LeadConnector API root.
	DefaultBaseURL = "https://services.leadconnectorhq.com"

	// APIVersion is sent in the Version header of every request.
	APIVersion = "2021-07-28"

	// MockHistoryText is the single display message returned when the CRM
	// is not configured.
	MockHistoryText = "This is a simulated CRM history (No API Key provided)."

	conversationLimit = 5
	mediaPlaceholder  = "[Media/Template Message]"
	defaultTimeout    = 10 * time.Second
	maxErrorBodySize  = 4096
)

// Client reads conversation history from the CRM.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each CRM request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a CRM history client. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, log *logger.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		log:        log.Named("crm"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the most recent conversations for a location in
// chronological order. A blank locationID or token yields a simulated
// snapshot with one system message and an empty transcript.
func (c *Client) Fetch(ctx context.Context, locationID, token string) (*model.HistorySnapshot, error) {
	if strings.TrimSpace(locationID) == "" || strings.TrimSpace(token) == "" {
		c.log.Debug("CRM not configured, serving simulated history",
			zap.String("kind", string(apperr.ConfigurationGap)))
		return c.mockSnapshot(), nil
	}

	ctx, span := tracing.Tracer("history").Start(ctx, "history.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("crm.location_id", locationID))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	snap, err := c.fetch(ctx, locationID, token)
	outcome := "success"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("history fetch failed", zap.String("location_id", locationID), zap.Error(err))
	} else {
		span.SetAttributes(attribute.Int("result.count", len(snap.Display)))
	}
	metrics.RecordExternalRequest("crm", outcome, time.Since(start).Seconds())

	return snap, err
}

func (c *Client) fetch(ctx context.Context, locationID, token string) (*model.HistorySnapshot, error) {
	params := url.Values{}
	params.Set("locationId", locationID)
	params.Set("limit", strconv.Itoa(conversationLimit))
	params.Set("sort", "desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/conversations/search?"+params.Encode(), nil)
	if err != nil {
		return nil, apperr.Internal("crm.fetch", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.TransportFailure("crm.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, apperr.Rejected("crm.fetch", resp.StatusCode, string(body))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.TransportFailure("crm.fetch", fmt.Errorf("decode response: %w", err))
	}

	return c.normalize(payload.Conversations), nil
}

// normalize reverses provider order (newest first) into chronological order
// and emits one display message and one transcript entry per last message.
func (c *Client) normalize(convs []conversation) *model.HistorySnapshot {
	snap := &model.HistorySnapshot{
		Display:    make([]model.DisplayMessage, 0, len(convs)),
		Transcript: make([]model.TranscriptEntry, 0, len(convs)),
	}
	for i := len(convs) - 1; i >= 0; i-- {
		conv := convs[i]
		if conv.LastMessage == nil {
			continue
		}
		msg := conv.LastMessage

		text := msg.Body
		if text == "" {
			text = mediaPlaceholder
		}
		sender, role := model.SenderAgent, model.RoleModel
		if msg.Direction == "inbound" {
			sender, role = model.SenderUser, model.RoleUser
		}

		snap.Display = append(snap.Display, model.DisplayMessage{
			ID:        conv.ID,
			Text:      text,
			Sender:    sender,
			Timestamp: c.parseTimestamp(msg.DateAdded),
		})
		snap.Transcript = append(snap.Transcript, model.TranscriptEntry{Role: role, Text: text})
	}
	return snap
}

func (c *Client) mockSnapshot() *model.HistorySnapshot {
	return &model.HistorySnapshot{
		Display: []model.DisplayMessage{{
			ID:        "mock_1",
			Text:      MockHistoryText,
			Sender:    model.SenderSystem,
			Timestamp: c.now().UTC(),
		}},
		Transcript: []model.TranscriptEntry{},
		Simulated:  true,
	}
}

// parseTimestamp accepts epoch milliseconds (number or numeric string) or
// RFC 3339. Anything else falls back to the current time.
func (c *Client) parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return c.now().UTC()
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if ms, err := num.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		if f, err := num.Float64(); err == nil {
			return time.UnixMilli(int64(f)).UTC()
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return c.now().UTC()
}

type searchResponse struct {
	Conversations []conversation `json:"conversations"`
}

type conversation struct {
	ID          string       `json:"id"`
	LastMessage *lastMessage `json:"lastMessage"`
}

type lastMessage struct {
	Body      string          `json:"body"`
	Direction string          `json:"direction"`
	DateAdded json.RawMessage `json:"dateAdded"`
}
