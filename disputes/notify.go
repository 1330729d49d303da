package disputes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/models"
)

// Notification templates. Channels render these by name.
const (
	TemplateDisputeFiled       = "dispute_filed"
	TemplateDiscussionStarted  = "discussion_started"
	TemplateVotingStarted      = "voting_started"
	TemplateDisputeResolved    = "dispute_resolved"
	TemplateDisputeEscalated   = "dispute_escalated"
	TemplateDisputeReviewed    = "dispute_reviewed"
	TemplateStatusOverridden   = "status_overridden"
	TemplateDiscussionReminder = "discussion_reminder"
	TemplateVotingReminder     = "voting_reminder"
	TemplateDiscussionOverdue  = "discussion_overdue"
)

func (s *Service) notify(ctx context.Context, d *models.Dispute, template string, recipients []string, extra map[string]string) {
	if s.Notifier == nil || len(recipients) == 0 {
		return
	}
	s.Notifier.Notify(ctx, Notification{
		Recipients: recipients,
		Template:   template,
		Payload:    DisputePayload(d, extra),
	})
}

// DisputePayload is the common template payload for a dispute, merged with
// extra keys
func DisputePayload(d *models.Dispute, extra map[string]string) map[string]string {
	p := map[string]string{
		"disputeId":   d.ID.Hex(),
		"chamaId":     d.ChamaID,
		"title":       d.Title,
		"disputeType": string(d.DisputeType),
		"status":      string(d.Status),
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

// memberIDs lists the active members of a chama. Lookup failures are logged
// and yield no recipients since notification is best effort.
func (s *Service) memberIDs(ctx context.Context, chamaID string, officersOnly bool) []string {
	members, err := s.Members.ActiveMembers(ctx, chamaID)
	if err != nil {
		zap.S().Errorw("failed to list chama members for notification", "chamaId", chamaID, "error", err)
		return nil
	}
	var ids []string
	for _, m := range members {
		if officersOnly && !IsOfficerRole(m.Role) {
			continue
		}
		ids = append(ids, m.UserID)
	}
	return ids
}

func (s *Service) officersAndParties(ctx context.Context, d *models.Dispute) []string {
	return dedupe(append(s.memberIDs(ctx, d.ChamaID, true), d.FiledByUserID, d.FiledAgainstUserID))
}

// eligibleVoters lists the members who may vote on d under the current policy
func (s *Service) eligibleVoters(ctx context.Context, d *models.Dispute) []string {
	var out []string
	for _, id := range s.memberIDs(ctx, d.ChamaID, false) {
		if !s.Policy.AllowPartyVotes && d.IsParty(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ReminderRecipients returns who should be reminded about an approaching
// deadline in the dispute's current phase. During discussion that is the
// officers and participants (parties and commenters) who have not commented
// since quietSince. During voting it is the eligible members who have not
// voted yet.
func (s *Service) ReminderRecipients(ctx context.Context, d *models.Dispute, quietSince time.Time) ([]string, error) {
	members, err := s.Members.ActiveMembers(ctx, d.ChamaID)
	if err != nil {
		return nil, unavailable("list members", err)
	}
	active := make(map[string]models.ChamaMember, len(members))
	for _, m := range members {
		active[m.UserID] = m
	}

	switch d.Status {
	case models.StatusDiscussion:
		comments, err := s.Comments.ListByDispute(ctx, d.ID)
		if err != nil {
			return nil, unavailable("list comments", err)
		}
		candidates := []string{d.FiledByUserID, d.FiledAgainstUserID}
		recent := map[string]bool{}
		for _, c := range comments {
			candidates = append(candidates, c.UserID)
			if c.CreatedAt.After(quietSince) {
				recent[c.UserID] = true
			}
		}
		for _, m := range members {
			if IsOfficerRole(m.Role) {
				candidates = append(candidates, m.UserID)
			}
		}
		var ids []string
		for _, id := range dedupe(candidates) {
			if _, ok := active[id]; ok && !recent[id] {
				ids = append(ids, id)
			}
		}
		return ids, nil
	case models.StatusVoting:
		votes, err := s.Votes.ListByDispute(ctx, d.ID)
		if err != nil {
			return nil, unavailable("list votes", err)
		}
		voted := make(map[string]bool, len(votes))
		for _, v := range votes {
			voted[v.UserID] = true
		}
		var ids []string
		for _, m := range members {
			if voted[m.UserID] || (!s.Policy.AllowPartyVotes && d.IsParty(m.UserID)) {
				continue
			}
			ids = append(ids, m.UserID)
		}
		return ids, nil
	}
	return nil, nil
}

// Officers returns the active officers of the dispute's chama
func (s *Service) Officers(ctx context.Context, d *models.Dispute) ([]string, error) {
	members, err := s.Members.ActiveMembers(ctx, d.ChamaID)
	if err != nil {
		return nil, unavailable("list members", err)
	}
	var ids []string
	for _, m := range members {
		if IsOfficerRole(m.Role) {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

// Send hands a notification about d to the notifier
func (s *Service) Send(ctx context.Context, d *models.Dispute, template string, recipients []string, extra map[string]string) {
	s.notify(ctx, d, template, recipients, extra)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
