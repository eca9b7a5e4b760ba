package api

import (
	"net/http"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
)

type dispatchRequest struct {
	WebhookID  string       `json:"webhook_id"`
	Event      *event.Event `json:"event"`
	Attempt    int          `json:"attempt,omitempty"`
	MaxRetries *int         `json:"max_retries,omitempty"`
}

type broadcastRequest struct {
	OrganizationID string       `json:"organization_id,omitempty"`
	Event          *event.Event `json:"event"`
}

// BroadcastResponse reports how many endpoints a broadcast matched.
type BroadcastResponse struct {
	WebhookCount int `json:"webhook_count"`
}

// dispatch makes one delivery attempt. Every outcome, dead_letter included,
// is a 200 with the status in the body.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	epID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook_id")
		return
	}
	if req.Attempt < 0 {
		writeError(w, http.StatusBadRequest, "attempt must be positive")
		return
	}
	if req.MaxRetries != nil && *req.MaxRetries < 1 {
		writeError(w, http.StatusBadRequest, "max_retries must be positive")
		return
	}

	// The dispatcher looks endpoints up by id alone.
	if _, err := h.herald.Endpoints().Get(r.Context(), orgOf(r), epID); err != nil {
		h.fail(w, r, err)
		return
	}

	fillEventID(req.Event)
	res, err := h.herald.Dispatch(r.Context(), delivery.Request{
		WebhookID:  epID,
		Event:      req.Event,
		Attempt:    req.Attempt,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID := orgOf(r)
	if req.OrganizationID != "" && req.OrganizationID != orgID {
		writeError(w, http.StatusBadRequest, "organization_id does not match "+HeaderOrganization)
		return
	}

	fillEventID(req.Event)
	n, err := h.herald.Broadcast(r.Context(), orgID, req.Event)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BroadcastResponse{WebhookCount: n})
}

// fillEventID gives an event without an id a fresh one.
func fillEventID(evt *event.Event) {
	if evt != nil && evt.ID == "" {
		evt.ID = id.NewEventID()
	}
}
