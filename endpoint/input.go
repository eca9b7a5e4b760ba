package endpoint

// CreateInput is the registration payload for a new endpoint.
type CreateInput struct {
	URL            string            `json:"url"`
	Events         []string          `json:"events"`
	Description    string            `json:"description,omitempty"`
	Secret         string            `json:"secret,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
	RetryCount     *int              `json:"retry_count,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	RateLimit      int               `json:"rate_limit,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// UpdateInput carries a partial update. Nil fields are left unchanged; a
// non-nil empty Headers map clears the custom headers.
type UpdateInput struct {
	URL            *string           `json:"url,omitempty"`
	Events         []string          `json:"events,omitempty"`
	Description    *string           `json:"description,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
	RetryCount     *int              `json:"retry_count,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	RateLimit      *int              `json:"rate_limit,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// ListOpts configures filtering and pagination for endpoint listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Enabled *bool
}
