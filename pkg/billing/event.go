package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Recognized webhook event types. Everything else is accepted and ignored so
// the provider's retry policy is never triggered by events this system does
// not care about.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
)

// statusCanceled on a subscription.updated event marks a payload that races
// a genuine cancellation event; it is treated as a no-op.
const statusCanceled = "canceled"

// WebhookEvent is the normalized, transient view of a provider webhook.
// It is consumed once and discarded after being folded into the quota record.
type WebhookEvent struct {
	EventID        string
	EventType      string
	CustomerID     string
	SubscriptionID string
	Status         string
	PriceID        string
	PriceName      string
	NextBilledAt   *time.Time
	CurrentUsage   *int64
}

// ParseWebhookEvent decodes a verified raw payload. It must only be called
// after signature verification has passed.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var payload struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Data      struct {
			ID         string         `json:"id"`
			Status     string         `json:"status"`
			CustomerID string         `json:"customer_id"`
			CustomData map[string]any `json:"custom_data"`
			Items      []struct {
				NextBilledAt *time.Time `json:"next_billed_at"`
				Price        struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"price"`
			} `json:"items"`
		} `json:"data"`
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event := &WebhookEvent{
		EventID:        payload.EventID,
		EventType:      payload.EventType,
		CustomerID:     payload.Data.CustomerID,
		SubscriptionID: payload.Data.ID,
		Status:         payload.Data.Status,
	}

	if len(payload.Data.Items) > 0 {
		item := payload.Data.Items[0]
		event.PriceID = item.Price.ID
		event.PriceName = item.Price.Name
		event.NextBilledAt = item.NextBilledAt
	}

	// Echo of the usage hint the update command attached as custom data.
	if usage, ok := payload.Data.CustomData["currentUsage"]; ok {
		if n, ok := usage.(float64); ok {
			v := int64(n)
			event.CurrentUsage = &v
		}
	}

	return event, nil
}

// Recognized reports whether the event type participates in quota
// reconciliation.
func (e *WebhookEvent) Recognized() bool {
	switch e.EventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCanceled:
		return true
	}
	return false
}
