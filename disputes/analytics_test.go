package disputes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/chama-disputes-api/models"
)

func TestSummarize(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	at := func(h int) *time.Time {
		v := start.Add(time.Duration(h) * time.Hour)
		return &v
	}

	ds := []models.Dispute{
		{DisputeType: models.DisputeTypePayment, Status: models.StatusResolved, CreatedAt: start, ResolvedAt: at(10)},
		{DisputeType: models.DisputeTypePayment, Status: models.StatusResolved, CreatedAt: start, ResolvedAt: at(20),
			Escalation: &models.Escalation{Reason: EscalationReasonQuorumNotReached}},
		{DisputeType: models.DisputeTypePayment, Status: models.StatusVoting, CreatedAt: start},
		{DisputeType: models.DisputeTypeLoanDefault, Status: models.StatusRejected, CreatedAt: start,
			Escalation: &models.Escalation{Reason: "fraud"}},
		{DisputeType: models.DisputeTypeLoanDefault, Status: models.StatusEscalated, CreatedAt: start,
			Escalation: &models.Escalation{Reason: "fraud"}},
	}

	rep := Summarize(ds, start, end)
	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, 15.0, rep.AvgResolutionHours)
	require.Len(t, rep.ByType, len(models.DisputeTypes))

	byType := map[models.DisputeType]TypeSummary{}
	for _, s := range rep.ByType {
		byType[s.DisputeType] = s
	}
	assert.Equal(t, TypeSummary{DisputeType: models.DisputeTypePayment, Total: 3, Open: 1, Resolved: 2, Escalated: 1, AvgResolutionHours: 15}, byType[models.DisputeTypePayment])
	assert.Equal(t, TypeSummary{DisputeType: models.DisputeTypeLoanDefault, Total: 2, Open: 1, Escalated: 2, Rejected: 1}, byType[models.DisputeTypeLoanDefault])
	assert.Zero(t, byType[models.DisputeTypePayout].Total)
}

func TestAnalyticsRequiresPlatformAdmin(t *testing.T) {
	f := newFixture()
	start := f.now.Add(-time.Hour)

	_, err := f.svc.Analytics(context.Background(), admin, start, f.now)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Analytics(context.Background(), platform, f.now, start)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	fileDispute(t, f)
	rep, err := f.svc.Analytics(context.Background(), platform, start, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)
}
