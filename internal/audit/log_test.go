package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/audit"
	"gearledger/internal/domain"
	"gearledger/internal/store"
	"gearledger/internal/store/memory"
)

func TestLog_appendAndQuery(t *testing.T) {
	s := memory.New()
	log := audit.New(s)
	ctx := context.Background()

	eq := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	first, err := log.Append(ctx, domain.AuditEvent{Action: domain.ActionEquipmentCreated, ActorID: alice, EquipmentID: &eq})
	require.NoError(t, err)
	second, err := log.Append(ctx, domain.AuditEvent{Action: domain.ActionEquipmentCheckedOut, ActorID: bob, EquipmentID: &eq, Metadata: json.RawMessage(`{"ticket":7}`)})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	byEquipment, err := log.QueryByEquipment(ctx, eq)
	require.NoError(t, err)
	require.Len(t, byEquipment, 2)
	assert.Equal(t, domain.ActionEquipmentCreated, byEquipment[0].Action)
	assert.Equal(t, domain.ActionEquipmentCheckedOut, byEquipment[1].Action)
	assert.False(t, byEquipment[0].OccurredAt.IsZero())
	assert.JSONEq(t, `{"ticket":7}`, string(byEquipment[1].Metadata))

	byBob, err := log.QueryByActor(ctx, bob)
	require.NoError(t, err)
	require.Len(t, byBob, 1)
	assert.Equal(t, second, byBob[0].ID)
}

func TestLog_appendWithoutEquipment(t *testing.T) {
	log := audit.New(memory.New())
	actor := uuid.New()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := log.Append(context.Background(), domain.AuditEvent{Action: domain.ActionStatusReconciled, ActorID: actor, OccurredAt: at})
	require.NoError(t, err)

	events, err := log.QueryByActor(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].EquipmentID)
	assert.True(t, events[0].OccurredAt.Equal(at))
}

// failingStore refuses every unit.
type failingStore struct {
	store.Store
}

func (failingStore) Atomic(context.Context, uuid.UUID, func(context.Context, store.Tx) error) error {
	return domain.ErrStoreUnavailable
}

func TestLog_appendPropagatesStoreFailure(t *testing.T) {
	log := audit.New(failingStore{Store: memory.New()})
	_, err := log.Append(context.Background(), domain.AuditEvent{Action: domain.ActionEquipmentCreated, ActorID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
