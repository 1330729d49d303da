package disputes

import (
	"context"
	"time"

	"github.com/linesmerrill/chama-disputes-api/models"
)

// TypeSummary aggregates the disputes of one type
type TypeSummary struct {
	DisputeType        models.DisputeType `json:"disputeType"`
	Total              int                `json:"total"`
	Open               int                `json:"open"`
	Resolved           int                `json:"resolved"`
	Escalated          int                `json:"escalated"`
	Rejected           int                `json:"rejected"`
	AvgResolutionHours float64            `json:"avgResolutionHours"`
}

// AnalyticsReport summarizes dispute volume and resolution time over a window
type AnalyticsReport struct {
	StartDate          time.Time     `json:"startDate"`
	EndDate            time.Time     `json:"endDate"`
	Total              int           `json:"total"`
	AvgResolutionHours float64       `json:"avgResolutionHours"`
	ByType             []TypeSummary `json:"byType"`
}

// Analytics reports on disputes created in [start, end). Platform admins only.
func (s *Service) Analytics(ctx context.Context, actor Actor, start, end time.Time) (AnalyticsReport, error) {
	if !actor.PlatformAdmin {
		return AnalyticsReport{}, forbidden("platform admin access required")
	}
	if !end.After(start) {
		return AnalyticsReport{}, invalidArgument("endDate must be after startDate")
	}
	ds, err := s.Disputes.ListCreatedBetween(ctx, start, end)
	if err != nil {
		return AnalyticsReport{}, unavailable("list disputes for analytics", err)
	}
	return Summarize(ds, start, end), nil
}

// Summarize builds the report from a dispute set. Escalated counts every
// dispute that was ever escalated, whatever its current status. Resolution
// time is measured from creation to resolution for resolved disputes.
func Summarize(ds []models.Dispute, start, end time.Time) AnalyticsReport {
	rep := AnalyticsReport{StartDate: start, EndDate: end, Total: len(ds)}

	byType := make(map[models.DisputeType]*TypeSummary, len(models.DisputeTypes))
	hours := make(map[models.DisputeType]float64)
	timed := make(map[models.DisputeType]int)
	var allHours float64
	var allResolved int

	for _, t := range models.DisputeTypes {
		byType[t] = &TypeSummary{DisputeType: t}
	}
	for _, d := range ds {
		ts, ok := byType[d.DisputeType]
		if !ok {
			continue
		}
		ts.Total++
		if d.Escalation != nil {
			ts.Escalated++
		}
		switch d.Status {
		case models.StatusResolved:
			ts.Resolved++
			if d.ResolvedAt != nil {
				h := d.ResolvedAt.Sub(d.CreatedAt).Hours()
				hours[d.DisputeType] += h
				timed[d.DisputeType]++
				allHours += h
				allResolved++
			}
		case models.StatusRejected:
			ts.Rejected++
		default:
			ts.Open++
		}
	}

	for _, t := range models.DisputeTypes {
		ts := byType[t]
		if n := timed[t]; n > 0 {
			ts.AvgResolutionHours = roundHours(hours[t] / float64(n))
		}
		rep.ByType = append(rep.ByType, *ts)
	}
	if allResolved > 0 {
		rep.AvgResolutionHours = roundHours(allHours / float64(allResolved))
	}
	return rep
}

func roundHours(h float64) float64 {
	return float64(int64(h*100+0.5)) / 100
}
