package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gearledger/internal/domain"
	"gearledger/internal/handler"
	"gearledger/internal/lifecycle"
	"gearledger/internal/middleware"
)

// mockEngine is a test double for lifecycle.Service.
// Set only the method fields your test needs.
type mockEngine struct {
	createEquipment     func(ctx context.Context, in lifecycle.NewEquipment, cmd lifecycle.Command) (domain.Equipment, error)
	deleteEquipment     func(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) error
	claim               func(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	checkOut            func(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	release             func(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	retire              func(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	scheduleMaintenance func(ctx context.Context, id uuid.UUID, in lifecycle.NewWindow, cmd lifecycle.Command) (domain.MaintenanceWindow, error)
	endMaintenance      func(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	cancelMaintenance   func(ctx context.Context, id, windowID uuid.UUID, cmd lifecycle.Command) error
	getEquipment        func(ctx context.Context, id uuid.UUID) (domain.Equipment, error)
	listEquipment       func(ctx context.Context, f domain.EquipmentFilter) ([]domain.Equipment, error)
	getHistory          func(ctx context.Context, id uuid.UUID) ([]domain.AuditEvent, error)
	listCheckouts       func(ctx context.Context, id uuid.UUID) ([]domain.Checkout, error)
	listMaintenance     func(ctx context.Context, id uuid.UUID) ([]domain.MaintenanceWindow, error)
	actorHistory        func(ctx context.Context, userID uuid.UUID) ([]domain.AuditEvent, error)
}

var _ lifecycle.Service = (*mockEngine)(nil)

func (m *mockEngine) CreateEquipment(ctx context.Context, in lifecycle.NewEquipment, cmd lifecycle.Command) (domain.Equipment, error) {
	return m.createEquipment(ctx, in, cmd)
}
func (m *mockEngine) DeleteEquipment(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) error {
	return m.deleteEquipment(ctx, id, cmd)
}
func (m *mockEngine) Claim(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return m.claim(ctx, id, cmd)
}
func (m *mockEngine) CheckOut(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return m.checkOut(ctx, id, cmd)
}
func (m *mockEngine) Release(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return m.release(ctx, id, cmd)
}
func (m *mockEngine) Retire(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return m.retire(ctx, id, cmd)
}
func (m *mockEngine) ScheduleMaintenance(ctx context.Context, id uuid.UUID, in lifecycle.NewWindow, cmd lifecycle.Command) (domain.MaintenanceWindow, error) {
	return m.scheduleMaintenance(ctx, id, in, cmd)
}
func (m *mockEngine) EndMaintenance(ctx context.Context, id uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error) {
	return m.endMaintenance(ctx, id, cmd)
}
func (m *mockEngine) CancelMaintenance(ctx context.Context, id, windowID uuid.UUID, cmd lifecycle.Command) error {
	return m.cancelMaintenance(ctx, id, windowID, cmd)
}
func (m *mockEngine) Reconcile(context.Context, uuid.UUID) (domain.Equipment, error) {
	panic("not used by the HTTP surface")
}
func (m *mockEngine) ReconcileAll(context.Context) (int, error) {
	panic("not used by the HTTP surface")
}
func (m *mockEngine) GetEquipment(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
	return m.getEquipment(ctx, id)
}
func (m *mockEngine) ListEquipment(ctx context.Context, f domain.EquipmentFilter) ([]domain.Equipment, error) {
	return m.listEquipment(ctx, f)
}
func (m *mockEngine) GetHistory(ctx context.Context, id uuid.UUID) ([]domain.AuditEvent, error) {
	return m.getHistory(ctx, id)
}
func (m *mockEngine) ListCheckouts(ctx context.Context, id uuid.UUID) ([]domain.Checkout, error) {
	return m.listCheckouts(ctx, id)
}
func (m *mockEngine) ListMaintenance(ctx context.Context, id uuid.UUID) ([]domain.MaintenanceWindow, error) {
	return m.listMaintenance(ctx, id)
}
func (m *mockEngine) ActorHistory(ctx context.Context, userID uuid.UUID) ([]domain.AuditEvent, error) {
	return m.actorHistory(ctx, userID)
}

// ---- helpers ---------------------------------------------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHTTPHandler wires svc into the router the way cmd/api does.
func newHTTPHandler(svc lifecycle.Service) http.Handler {
	return handler.NewRouter(handler.NewServer(svc, discardLogger()), handler.RouterConfig{
		Logger:       discardLogger(),
		RateLimitRPS: 1000,
		RateBurst:    1000,
	})
}

// caller is who a test request claims to be.
type caller struct {
	id    uuid.UUID
	roles string
}

var (
	alice = caller{id: uuid.MustParse("0d6d0b38-4a59-4bd4-b0a6-2f5d9b1c9e01"), roles: "staff"}
	bob   = caller{id: uuid.MustParse("7e1e4f4c-3a8a-4c43-9f65-5b7d0a2d1c02"), roles: "staff"}
	boss  = caller{id: uuid.MustParse("c3b2a190-1f2e-4d3c-8b7a-6a5f4e3d2c03"), roles: "manager"}
)

func do(t *testing.T, h http.Handler, c *caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if c != nil {
		req.Header.Set(middleware.HeaderUserID, c.id.String())
		req.Header.Set(middleware.HeaderUserRoles, c.roles)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
