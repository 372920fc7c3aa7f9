// internal/clients/client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"gearledger/internal/domain"
	"gearledger/internal/lifecycle"
)

// Headers the API reads the caller's identity from.
const (
	headerUserID    = "X-User-ID"
	headerUserRoles = "X-User-Roles"
)

// Client calls the gearledger HTTP API. Error responses are turned back into
// the domain sentinel errors, so callers can use errors.Is exactly as they
// would against the engine itself.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after 10s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a Client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is the decoded error body of a failed request. It unwraps to the
// matching domain sentinel.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
	sentinel   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

// ErrUnauthorized is returned when the API rejected the identity headers.
var ErrUnauthorized = errors.New("unauthorized")

// ErrRateLimited is returned on 429.
var ErrRateLimited = errors.New("rate limited")

func sentinelFor(status int) error {
	switch status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return domain.ErrStoreUnavailable
	}
	return nil
}

func (c *Client) CreateEquipment(ctx context.Context, in lifecycle.NewEquipment, cmd lifecycle.Command) (domain.Equipment, error) {
	body := map[string]any{"name": in.Name, "slug": in.Slug}
	if in.Description != "" {
		body["description"] = in.Description
	}
	var eq domain.Equipment
	err := c.do(ctx, cmd.Actor, http.MethodPost, "/equipment", withMetadata(body, cmd), &eq)
	return eq, err
}

func (c *Client) DeleteEquipment(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) error {
	return c.do(ctx, cmd.Actor, http.MethodDelete, "/equipment/"+equipmentID.String(), withMetadata(nil, cmd), nil)
}

func (c *Client) Claim(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return c.transition(ctx, equipmentID, "claim", cmd)
}

func (c *Client) CheckOut(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return c.transition(ctx, equipmentID, "checkout", cmd)
}

func (c *Client) Release(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return c.transition(ctx, equipmentID, "release", cmd)
}

func (c *Client) Retire(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return c.transition(ctx, equipmentID, "retire", cmd)
}

func (c *Client) EndMaintenance(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return c.transition(ctx, equipmentID, "maintenance/end", cmd)
}

func (c *Client) ScheduleMaintenance(ctx context.Context, equipmentID uuid.UUID, in lifecycle.NewWindow, cmd lifecycle.Command) (domain.MaintenanceWindow, error) {
	body := map[string]any{"starts_at": in.StartsAt, "ends_at": in.EndsAt, "reason": in.Reason}
	var w domain.MaintenanceWindow
	err := c.do(ctx, cmd.Actor, http.MethodPost, "/equipment/"+equipmentID.String()+"/maintenance", withMetadata(body, cmd), &w)
	return w, err
}

func (c *Client) CancelMaintenance(ctx context.Context, equipmentID, windowID uuid.UUID, cmd lifecycle.Command) error {
	path := "/equipment/" + equipmentID.String() + "/maintenance/" + windowID.String()
	return c.do(ctx, cmd.Actor, http.MethodDelete, path, withMetadata(nil, cmd), nil)
}

func (c *Client) GetEquipment(ctx context.Context, actor domain.Actor, equipmentID uuid.UUID) (domain.Equipment, error) {
	var eq domain.Equipment
	err := c.do(ctx, actor, http.MethodGet, "/equipment/"+equipmentID.String(), nil, &eq)
	return eq, err
}

func (c *Client) ListEquipment(ctx context.Context, actor domain.Actor, filter domain.EquipmentFilter) ([]domain.Equipment, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := "/equipment"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return list[domain.Equipment](ctx, c, actor, path)
}

func (c *Client) GetHistory(ctx context.Context, actor domain.Actor, equipmentID uuid.UUID) ([]domain.AuditEvent, error) {
	return list[domain.AuditEvent](ctx, c, actor, "/equipment/"+equipmentID.String()+"/history")
}

func (c *Client) ListCheckouts(ctx context.Context, actor domain.Actor, equipmentID uuid.UUID) ([]domain.Checkout, error) {
	return list[domain.Checkout](ctx, c, actor, "/equipment/"+equipmentID.String()+"/checkouts")
}

func (c *Client) ListMaintenance(ctx context.Context, actor domain.Actor, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error) {
	return list[domain.MaintenanceWindow](ctx, c, actor, "/equipment/"+equipmentID.String()+"/maintenance")
}

func (c *Client) ActorHistory(ctx context.Context, actor domain.Actor, userID uuid.UUID) ([]domain.AuditEvent, error) {
	return list[domain.AuditEvent](ctx, c, actor, "/actors/"+userID.String()+"/history")
}

// Health returns nil when /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, domain.Actor{}, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) transition(ctx context.Context, equipmentID uuid.UUID, verb string, cmd lifecycle.Command) (domain.Equipment, error) {
	var eq domain.Equipment
	err := c.do(ctx, cmd.Actor, http.MethodPost, "/equipment/"+equipmentID.String()+"/"+verb, withMetadata(nil, cmd), &eq)
	return eq, err
}

func list[T any](ctx context.Context, c *Client, actor domain.Actor, path string) ([]T, error) {
	var out struct {
		Data []T `json:"data"`
	}
	if err := c.do(ctx, actor, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// withMetadata adds the command metadata to body. A nil body with no metadata
// stays nil so the request is sent without one.
func withMetadata(body map[string]any, cmd lifecycle.Command) map[string]any {
	if len(cmd.Metadata) == 0 {
		return body
	}
	if body == nil {
		body = map[string]any{}
	}
	body["metadata"] = cmd.Metadata
	return body
}

func (c *Client) do(ctx context.Context, actor domain.Actor, method, path string, body map[string]any, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clients.Client: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("clients.Client: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor.Authenticated() {
		req.Header.Set(headerUserID, actor.UserID.String())
		if len(actor.Roles) > 0 {
			req.Header.Set(headerUserRoles, strings.Join(actor.Roles, ","))
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clients.Client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("clients.Client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, sentinel: sentinelFor(resp.StatusCode)}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		apiErr.Code, apiErr.Message = body.Error.Code, body.Error.Message
	} else {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
