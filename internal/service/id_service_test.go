package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type mockCounters struct {
	seqs map[string]int64
}

func (m *mockCounters) Next(ctx context.Context, prefix string) (int64, error) {
	if m.seqs == nil {
		m.seqs = map[string]int64{}
	}
	m.seqs[prefix]++
	return m.seqs[prefix], nil
}

func TestFormatIDPadding(t *testing.T) {
	assert.Equal(t, "CUS00001", FormatID("CUS", 1))
	assert.Equal(t, "ORD00042", FormatID("ORD", 42))
	assert.Equal(t, "EMP99999", FormatID("EMP", 99999))
	// Padding widens naturally once the sequence outgrows five digits.
	assert.Equal(t, "ORD100000", FormatID("ORD", 100000))
}

func TestIDServicePrefixesByRole(t *testing.T) {
	svc := NewIDService(&mockCounters{}, zap.NewNop())
	ctx := context.Background()

	id, err := svc.NextAccountID(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "ADM00001", id)

	id, err = svc.NextAccountID(ctx, models.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, "CUS00001", id)

	id, err = svc.NextAccountID(ctx, models.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, "CUS00002", id)

	id, err = svc.NextOrderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ORD00001", id)

	id, err = svc.NextLeadID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LEAD00001", id)
}

func TestIDServiceRejectsUnknownRole(t *testing.T) {
	svc := NewIDService(&mockCounters{}, zap.NewNop())
	_, err := svc.NextAccountID(context.Background(), models.Role("AUDITOR"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResolveProcessingDays(t *testing.T) {
	assert.Equal(t, 10, ResolveProcessingDays(10))
	assert.Equal(t, models.DefaultProcessingDays, ResolveProcessingDays(0))
	assert.Equal(t, models.DefaultProcessingDays, ResolveProcessingDays(-3))
}

func TestComputeDueDate(t *testing.T) {
	purchased := time.Date(2026, 1, 31, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 10, 18, 30, 0, 0, time.UTC), ComputeDueDate(purchased, 10))
	// Zero turnaround falls back to the default.
	assert.Equal(t, purchased.AddDate(0, 0, models.DefaultProcessingDays), ComputeDueDate(purchased, 0))
}
