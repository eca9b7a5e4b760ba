package api

import (
	"net/http"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
)

// CreateWebhookResponse returns the secret alongside the endpoint; it is
// the only time the secret is shown besides rotation.
type CreateWebhookResponse struct {
	Webhook *endpoint.Endpoint `json:"webhook"`
	Secret  string             `json:"secret"`
}

// TestWebhookResponse acknowledges a started webhook.test delivery.
type TestWebhookResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	opts := endpoint.ListOpts{Offset: offset, Limit: limit}

	switch queryParam(r, "enabled") {
	case "true":
		enabled := true
		opts.Enabled = &enabled
	case "false":
		enabled := false
		opts.Enabled = &enabled
	}

	eps, err := h.herald.Endpoints().List(r.Context(), orgOf(r), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if eps == nil {
		eps = []*endpoint.Endpoint{}
	}

	writeJSON(w, http.StatusOK, eps)
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var in endpoint.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.herald.Endpoints().Create(r.Context(), orgOf(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateWebhookResponse{Webhook: ep, Secret: ep.Secret})
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	epID, ok := webhookID(w, r)
	if !ok {
		return
	}

	ep, err := h.herald.Endpoints().Get(r.Context(), orgOf(r), epID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	epID, ok := webhookID(w, r)
	if !ok {
		return
	}

	var in endpoint.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.herald.Endpoints().Update(r.Context(), orgOf(r), epID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	epID, ok := webhookID(w, r)
	if !ok {
		return
	}

	if err := h.herald.Endpoints().Delete(r.Context(), orgOf(r), epID); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// testWebhook starts a webhook.test delivery and answers before it ends.
func (h *Handler) testWebhook(w http.ResponseWriter, r *http.Request) {
	epID, ok := webhookID(w, r)
	if !ok {
		return
	}

	evt, err := h.herald.TestWebhook(r.Context(), orgOf(r), epID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, TestWebhookResponse{EventID: evt.ID, Status: "dispatched"})
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	epID, ok := webhookID(w, r)
	if !ok {
		return
	}

	secret, err := h.herald.Endpoints().RotateSecret(r.Context(), orgOf(r), epID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// webhookID parses the {id} path value, answering 400 when it is malformed.
func webhookID(w http.ResponseWriter, r *http.Request) (id.ID, bool) {
	epID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return id.Nil, false
	}
	return epID, true
}
