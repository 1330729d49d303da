package disputes

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/models"
)

// EscalationReasonQuorumNotReached is recorded when the voting deadline
// passes without enough votes
const EscalationReasonQuorumNotReached = "quorum_not_reached"

// Platform review decisions. Upheld, dismissed and settled resolve the
// dispute, rejected closes it without a resolution.
const (
	ReviewUpheld    = "upheld"
	ReviewDismissed = "dismissed"
	ReviewSettled   = "settled"
	ReviewRejected  = "rejected"
)

// EscalateDispute sends an open dispute to platform review. Officers and the
// filer may escalate.
func (s *Service) EscalateDispute(ctx context.Context, actor Actor, id primitive.ObjectID, reason string) (*models.Dispute, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	isFiler := caps.Has(RoleChamaMember) && d.FiledByUserID == actor.UserID
	if !caps.Has(RoleChamaOfficer) && !isFiler {
		return nil, forbidden("only chama officers or the filer can escalate")
	}
	switch d.Status {
	case models.StatusFiled, models.StatusDiscussion, models.StatusVoting:
	default:
		return nil, invalidTransition(string(d.Status), "escalate")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidArgument("reason is required")
	}

	now := s.now()
	next := *d
	next.Status = models.StatusEscalated
	next.DiscussionDeadline = nil
	next.VotingDeadline = nil
	next.Escalation = &models.Escalation{
		EscalatedByUserID: actor.UserID,
		Reason:            reason,
		EscalatedAt:       now,
	}
	if err := s.commit(ctx, d, &next); err != nil {
		return nil, err
	}

	s.audit(ctx, &next, actor.UserID, caps.Primary(), "escalate", d.Status, next.Status, reason)
	s.notify(ctx, &next, TemplateDisputeEscalated, s.officersAndParties(ctx, &next), map[string]string{
		"reason": reason,
	})
	return &next, nil
}

// ListEscalated is the platform review queue, oldest escalation first
func (s *Service) ListEscalated(ctx context.Context, actor Actor, limit, offset int64) ([]models.Dispute, error) {
	if !actor.PlatformAdmin {
		return nil, forbidden("platform admin access required")
	}
	limit, offset = page(limit, offset)
	ds, err := s.Disputes.ListEscalated(ctx, limit, offset)
	if err != nil {
		return nil, unavailable("list escalated disputes", err)
	}
	return ds, nil
}

// ReviewEscalatedDispute records the platform decision on an escalated
// dispute and closes it
func (s *Service) ReviewEscalatedDispute(ctx context.Context, actor Actor, id primitive.ObjectID, decision, details string) (*models.Dispute, error) {
	if !actor.PlatformAdmin {
		return nil, forbidden("platform admin access required")
	}
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != models.StatusEscalated {
		return nil, invalidTransition(string(d.Status), "review")
	}

	now := s.now()
	details = strings.TrimSpace(details)
	next := *d
	switch decision {
	case ReviewUpheld, ReviewDismissed, ReviewSettled:
		next.Status = models.StatusResolved
		next.ResolutionType = models.ResolutionType(decision)
		next.ResolvedAt = &now
		next.ResolvedByUserID = actor.UserID
		next.DecisionNotes = details
	case ReviewRejected:
		next.Status = models.StatusRejected
	default:
		return nil, invalidArgument("decision must be one of upheld, dismissed, settled, rejected")
	}

	esc := models.Escalation{EscalatedAt: d.UpdatedAt}
	if d.Escalation != nil {
		esc = *d.Escalation
	}
	esc.ReviewedByAdminID = actor.UserID
	esc.PlatformDecision = decision
	esc.ActionDetails = details
	esc.ReviewedAt = &now
	next.Escalation = &esc

	if err := s.commit(ctx, d, &next); err != nil {
		return nil, err
	}

	zap.S().Infow("escalated dispute reviewed",
		"disputeId", d.ID.Hex(),
		"adminId", actor.UserID,
		"decision", decision)
	s.audit(ctx, &next, actor.UserID, RolePlatformAdmin, "platform_review", d.Status, next.Status, decision)
	recipients := dedupe(append(s.memberIDs(ctx, next.ChamaID, false), next.FiledByUserID, next.FiledAgainstUserID))
	s.notify(ctx, &next, TemplateDisputeReviewed, recipients, map[string]string{
		"decision":              decision,
		"platformActionDetails": details,
	})
	return &next, nil
}
