package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/scope"
)

// ForgeAPI exposes the management operations as Forge routes with OpenAPI
// metadata, for hosts that run on Forge instead of net/http.
type ForgeAPI struct {
	herald *herald.Herald
	log    forge.Logger
}

// NewForgeAPI creates a ForgeAPI over h.
func NewForgeAPI(h *herald.Herald, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{
		herald: h,
		log:    log,
	}
}

// RegisterRoutes registers all Herald management routes into the given
// Forge router.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerWebhookRoutes(router)
	a.registerDispatchRoutes(router)
	a.registerDeliveryRoutes(router)
	a.registerCatalogRoutes(router)
}

// org resolves the caller's organization from the bound header, then from
// the request context.
func (a *ForgeAPI) org(ctx forge.Context, header string) (string, error) {
	if header != "" {
		return header, nil
	}
	if orgID, ok := scope.Organization(ctx.Context()); ok {
		return orgID, nil
	}
	return "", forge.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderOrganization+" header")
}

// ---------------------------------------------------------------------------
// Webhook routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerWebhookRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("webhooks"))

	if err := g.POST("/webhooks", a.createWebhook,
		forge.WithSummary("Create webhook"),
		forge.WithDescription("Registers a webhook endpoint for the caller's organization. The signing secret is returned once."),
		forge.WithOperationID("createWebhook"),
		forge.WithRequestSchema(CreateWebhookForgeRequest{}),
		forge.WithCreatedResponse(CreateWebhookResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register createWebhook route", forge.Error(err))
	}

	if err := g.GET("/webhooks", a.listWebhooks,
		forge.WithSummary("List webhooks"),
		forge.WithDescription("Returns the organization's webhooks, newest first."),
		forge.WithOperationID("listWebhooks"),
		forge.WithRequestSchema(ListWebhooksForgeRequest{}),
		forge.WithListResponse(endpoint.Endpoint{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listWebhooks route", forge.Error(err))
	}

	if err := g.GET("/webhooks/:webhookId", a.getWebhook,
		forge.WithSummary("Get webhook"),
		forge.WithOperationID("getWebhook"),
		forge.WithResponseSchema(http.StatusOK, "Webhook details", endpoint.Endpoint{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getWebhook route", forge.Error(err))
	}

	if err := g.PUT("/webhooks/:webhookId", a.updateWebhook,
		forge.WithSummary("Update webhook"),
		forge.WithDescription("Applies a partial update. Omitted fields are unchanged."),
		forge.WithOperationID("updateWebhook"),
		forge.WithRequestSchema(UpdateWebhookForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated webhook", endpoint.Endpoint{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register updateWebhook route", forge.Error(err))
	}

	if err := g.DELETE("/webhooks/:webhookId", a.deleteWebhook,
		forge.WithSummary("Delete webhook"),
		forge.WithDescription("Deletes a webhook. Its delivery history is kept."),
		forge.WithOperationID("deleteWebhook"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register deleteWebhook route", forge.Error(err))
	}

	if err := g.POST("/webhooks/:webhookId/test", a.testWebhook,
		forge.WithSummary("Test webhook"),
		forge.WithDescription("Sends a webhook.test event asynchronously. The outcome appears under /deliveries."),
		forge.WithOperationID("testWebhook"),
		forge.WithResponseSchema(http.StatusAccepted, "Test dispatched", TestWebhookResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register testWebhook route", forge.Error(err))
	}

	if err := g.POST("/webhooks/:webhookId/rotate-secret", a.rotateSecret,
		forge.WithSummary("Rotate secret"),
		forge.WithDescription("Generates a new signing secret for the webhook."),
		forge.WithOperationID("rotateWebhookSecret"),
		forge.WithResponseSchema(http.StatusOK, "New signing secret", SecretForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register rotateSecret route", forge.Error(err))
	}
}

func (a *ForgeAPI) createWebhook(ctx forge.Context, req *CreateWebhookForgeRequest) (*CreateWebhookResponse, error) {
	orgID, err := a.org(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	ep, err := a.herald.Endpoints().Create(ctx.Context(), orgID, endpoint.CreateInput{
		URL:            req.URL,
		Events:         req.Events,
		Description:    req.Description,
		Secret:         req.Secret,
		Enabled:        req.Enabled,
		RetryCount:     req.RetryCount,
		TimeoutSeconds: req.TimeoutSeconds,
		RateLimit:      req.RateLimit,
		Headers:        req.Headers,
	})
	if err != nil {
		return nil, mapError(err)
	}

	err = ctx.JSON(http.StatusCreated, CreateWebhookResponse{Webhook: ep, Secret: ep.Secret})
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) listWebhooks(ctx forge.Context, req *ListWebhooksForgeRequest) ([]*endpoint.Endpoint, error) {
	orgID, err := a.org(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := endpoint.ListOpts{
		Offset: req.Offset,
		Limit:  min(limit, maxLimit),
	}
	switch req.Enabled {
	case "true":
		enabled := true
		opts.Enabled = &enabled
	case "false":
		enabled := false
		opts.Enabled = &enabled
	}

	eps, err := a.herald.Endpoints().List(ctx.Context(), orgID, opts)
	if err != nil {
		return nil, mapError(err)
	}

	return eps, nil
}

func (a *ForgeAPI) getWebhook(ctx forge.Context, req *WebhookForgeRequest) (*endpoint.Endpoint, error) {
	orgID, epID, err := a.webhookTarget(ctx, req.OrganizationID, req.WebhookID)
	if err != nil {
		return nil, err
	}

	ep, err := a.herald.Endpoints().Get(ctx.Context(), orgID, epID)
	if err != nil {
		return nil, mapError(err)
	}

	return ep, nil
}

func (a *ForgeAPI) updateWebhook(ctx forge.Context, req *UpdateWebhookForgeRequest) (*endpoint.Endpoint, error) {
	orgID, epID, err := a.webhookTarget(ctx, req.OrganizationID, req.WebhookID)
	if err != nil {
		return nil, err
	}

	ep, err := a.herald.Endpoints().Update(ctx.Context(), orgID, epID, endpoint.UpdateInput{
		URL:            req.URL,
		Events:         req.Events,
		Description:    req.Description,
		Enabled:        req.Enabled,
		RetryCount:     req.RetryCount,
		TimeoutSeconds: req.TimeoutSeconds,
		RateLimit:      req.RateLimit,
		Headers:        req.Headers,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return ep, nil
}

func (a *ForgeAPI) deleteWebhook(ctx forge.Context, req *WebhookForgeRequest) (*endpoint.Endpoint, error) {
	orgID, epID, err := a.webhookTarget(ctx, req.OrganizationID, req.WebhookID)
	if err != nil {
		return nil, err
	}

	if err := a.herald.Endpoints().Delete(ctx.Context(), orgID, epID); err != nil {
		return nil, mapError(err)
	}

	err = ctx.NoContent(http.StatusNoContent)
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.NoContent.
	return nil, nil
}

func (a *ForgeAPI) testWebhook(ctx forge.Context, req *WebhookForgeRequest) (*TestWebhookResponse, error) {
	orgID, epID, err := a.webhookTarget(ctx, req.OrganizationID, req.WebhookID)
	if err != nil {
		return nil, err
	}

	evt, err := a.herald.TestWebhook(ctx.Context(), orgID, epID)
	if err != nil {
		return nil, mapError(err)
	}

	err = ctx.JSON(http.StatusAccepted, TestWebhookResponse{EventID: evt.ID, Status: "dispatched"})
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) rotateSecret(ctx forge.Context, req *WebhookForgeRequest) (*SecretForgeResponse, error) {
	orgID, epID, err := a.webhookTarget(ctx, req.OrganizationID, req.WebhookID)
	if err != nil {
		return nil, err
	}

	secret, err := a.herald.Endpoints().RotateSecret(ctx.Context(), orgID, epID)
	if err != nil {
		return nil, mapError(err)
	}

	return &SecretForgeResponse{Secret: secret}, nil
}

func (a *ForgeAPI) webhookTarget(ctx forge.Context, header, rawID string) (string, id.ID, error) {
	orgID, err := a.org(ctx, header)
	if err != nil {
		return "", id.Nil, err
	}
	epID, err := id.ParseWebhookID(rawID)
	if err != nil {
		return "", id.Nil, forge.BadRequest("invalid webhook ID")
	}
	return orgID, epID, nil
}

// ---------------------------------------------------------------------------
// Dispatch routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDispatchRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("dispatch"))

	if err := g.POST("/dispatch", a.dispatch,
		forge.WithSummary("Dispatch event"),
		forge.WithDescription("Makes one delivery attempt. delivered, retry_scheduled and dead_letter are all returned with 200."),
		forge.WithOperationID("dispatch"),
		forge.WithRequestSchema(DispatchForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Dispatch result", delivery.Result{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register dispatch route", forge.Error(err))
	}

	if err := g.POST("/broadcast", a.broadcast,
		forge.WithSummary("Broadcast event"),
		forge.WithDescription("Fans an event out to every subscribed webhook of the organization without waiting for outcomes."),
		forge.WithOperationID("broadcast"),
		forge.WithRequestSchema(BroadcastForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Matched webhooks", BroadcastResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register broadcast route", forge.Error(err))
	}
}

func (a *ForgeAPI) dispatch(ctx forge.Context, req *DispatchForgeRequest) (*delivery.Result, error) {
	orgID, epID, err := a.webhookTarget(ctx, req.OrganizationID, req.WebhookID)
	if err != nil {
		return nil, err
	}
	if req.Attempt < 0 {
		return nil, forge.BadRequest("attempt must be positive")
	}
	if req.MaxRetries != nil && *req.MaxRetries < 1 {
		return nil, forge.BadRequest("max_retries must be positive")
	}

	if _, err := a.herald.Endpoints().Get(ctx.Context(), orgID, epID); err != nil {
		return nil, mapError(err)
	}

	fillEventID(req.Event)
	res, err := a.herald.Dispatch(ctx.Context(), delivery.Request{
		WebhookID:  epID,
		Event:      req.Event,
		Attempt:    req.Attempt,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return res, nil
}

func (a *ForgeAPI) broadcast(ctx forge.Context, req *BroadcastForgeRequest) (*BroadcastResponse, error) {
	orgID, err := a.org(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	fillEventID(req.Event)
	n, err := a.herald.Broadcast(ctx.Context(), orgID, req.Event)
	if err != nil {
		return nil, mapError(err)
	}

	return &BroadcastResponse{WebhookCount: n}, nil
}

// ---------------------------------------------------------------------------
// Delivery routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDeliveryRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("deliveries"))

	if err := g.GET("/deliveries", a.listDeliveries,
		forge.WithSummary("List deliveries"),
		forge.WithDescription("Returns ledger rows for the organization, newest first."),
		forge.WithOperationID("listDeliveries"),
		forge.WithRequestSchema(ListDeliveriesForgeRequest{}),
		forge.WithListResponse(delivery.Delivery{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listDeliveries route", forge.Error(err))
	}

	if err := g.GET("/deliveries/:deliveryId", a.getDelivery,
		forge.WithSummary("Get delivery"),
		forge.WithOperationID("getDelivery"),
		forge.WithResponseSchema(http.StatusOK, "Ledger row", delivery.Delivery{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getDelivery route", forge.Error(err))
	}

	if err := g.POST("/deliveries/:deliveryId/replay", a.replayDelivery,
		forge.WithSummary("Replay dead letter"),
		forge.WithDescription("Re-dispatches a dead-lettered delivery as a new chain starting at attempt 1."),
		forge.WithOperationID("replayDelivery"),
		forge.WithResponseSchema(http.StatusOK, "Dispatch result", delivery.Result{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register replayDelivery route", forge.Error(err))
	}
}

func (a *ForgeAPI) listDeliveries(ctx forge.Context, req *ListDeliveriesForgeRequest) ([]*delivery.Delivery, error) {
	orgID, err := a.org(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := delivery.ListOpts{
		OrganizationID: orgID,
		Offset:         req.Offset,
		Limit:          min(limit, maxLimit),
	}
	if req.WebhookID != "" {
		epID, err := id.ParseWebhookID(req.WebhookID)
		if err != nil {
			return nil, forge.BadRequest("invalid webhook_id")
		}
		opts.WebhookID = epID
	}
	if req.Status != "" {
		opts.Status = delivery.Status(req.Status)
		if !opts.Status.Valid() {
			return nil, forge.BadRequest("invalid status")
		}
	}

	rows, err := a.herald.Ledger().List(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}

	return rows, nil
}

func (a *ForgeAPI) getDelivery(ctx forge.Context, req *DeliveryForgeRequest) (*delivery.Delivery, error) {
	orgID, delID, err := a.deliveryTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	row, err := a.herald.Ledger().Get(ctx.Context(), delID)
	if err != nil {
		return nil, mapError(err)
	}
	if row.OrganizationID != orgID {
		return nil, forge.NotFound("delivery not found")
	}

	return row, nil
}

func (a *ForgeAPI) replayDelivery(ctx forge.Context, req *DeliveryForgeRequest) (*delivery.Result, error) {
	orgID, delID, err := a.deliveryTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := a.herald.DLQ().Replay(ctx.Context(), orgID, delID)
	if err != nil {
		return nil, mapError(err)
	}

	return res, nil
}

func (a *ForgeAPI) deliveryTarget(ctx forge.Context, req *DeliveryForgeRequest) (string, id.ID, error) {
	orgID, err := a.org(ctx, req.OrganizationID)
	if err != nil {
		return "", id.Nil, err
	}
	delID, err := id.ParseDeliveryID(req.DeliveryID)
	if err != nil {
		return "", id.Nil, forge.BadRequest("invalid delivery ID")
	}
	return orgID, delID, nil
}

// ---------------------------------------------------------------------------
// Catalog routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerCatalogRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("event-types"))

	if err := g.GET("/event-types", a.listEventTypes,
		forge.WithSummary("List event types"),
		forge.WithDescription("Returns the event types Herald can deliver, with their payload schemas."),
		forge.WithOperationID("listEventTypes"),
		forge.WithListResponse(EventTypeForgeResponse{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listEventTypes route", forge.Error(err))
	}
}

func (a *ForgeAPI) listEventTypes(_ forge.Context, _ *ListEventTypesForgeRequest) ([]catalog.Definition, error) {
	return a.herald.Catalog().List(), nil
}
