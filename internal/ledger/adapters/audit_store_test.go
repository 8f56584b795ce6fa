package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/ledger/models"
	"rollguard/internal/ledger/service"
	"rollguard/internal/ledger/store"
	audit "rollguard/pkg/platform/audit"
)

func TestAuditStoreAppendsToAuditChain(t *testing.T) {
	ledger, err := service.New(store.NewInMemory())
	require.NoError(t, err)
	s := NewAuditStore(ledger)

	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		Action:    string(audit.EventVoterMerged),
		Subject:   "flag-9",
		ActorID:   "officer-1",
		Metadata:  map[string]string{"merged_into": "R-1", "deactivated": "R-2"},
	}
	require.NoError(t, s.Append(context.Background(), event))

	b, err := ledger.Block(context.Background(), models.ChainAudit, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`{"action":"voter_merged","actor_id":"officer-1","category":"compliance",`+
			`"metadata":{"deactivated":"R-2","merged_into":"R-1"},`+
			`"occurred_at":"2026-04-01T12:00:00Z","subject":"flag-9"}`,
		string(b.Payload))

	result, err := ledger.Verify(context.Background(), models.ChainAudit)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
