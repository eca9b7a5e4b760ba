package api

import (
	"net/http"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	opts := delivery.ListOpts{
		OrganizationID: orgOf(r),
		Offset:         offset,
		Limit:          limit,
	}

	if raw := queryParam(r, "webhook_id"); raw != "" {
		epID, err := id.ParseWebhookID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid webhook_id")
			return
		}
		opts.WebhookID = epID
	}
	if raw := queryParam(r, "status"); raw != "" {
		status := delivery.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		opts.Status = status
	}

	rows, err := h.herald.Ledger().List(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []*delivery.Delivery{}
	}

	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	delID, ok := deliveryID(w, r)
	if !ok {
		return
	}

	row, err := h.herald.Ledger().Get(r.Context(), delID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if row.OrganizationID != orgOf(r) {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}

	writeJSON(w, http.StatusOK, row)
}

// replayDelivery restarts a dead-lettered chain from attempt 1.
func (h *Handler) replayDelivery(w http.ResponseWriter, r *http.Request) {
	delID, ok := deliveryID(w, r)
	if !ok {
		return
	}

	res, err := h.herald.DLQ().Replay(r.Context(), orgOf(r), delID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func deliveryID(w http.ResponseWriter, r *http.Request) (id.ID, bool) {
	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return id.Nil, false
	}
	return delID, true
}
