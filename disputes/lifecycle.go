// Package disputes implements the chama dispute lifecycle: the phase state
// machine, the voting tally, escalation to platform review and the
// collaborator contracts (storage, membership, notifications, audit) it
// depends on.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const maxFinalizeAttempts = 3

// ErrVotingOpen is returned by Finalize while the voting deadline has not
// passed and quorum is not met. The dispute is left unchanged.
var ErrVotingOpen = fmt.Errorf("%w: voting is still open and quorum is not met", ErrInvalidTransition)

// Policy holds the tunable rules of the lifecycle
type Policy struct {
	// AllowPartyVotes lets the filer and the accused vote on their own dispute
	AllowPartyVotes      bool
	EvidenceFolder       string
	EvidenceAllowedTypes []string
	EvidenceMaxBytes     int64
	MaxCommentLength     int
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		AllowPartyVotes:      false,
		EvidenceFolder:       "chama-disputes",
		EvidenceAllowedTypes: []string{"image/jpeg", "image/png", "application/pdf"},
		EvidenceMaxBytes:     10 << 20,
		MaxCommentLength:     5000,
	}
}

// Service is the dispute lifecycle controller. Every state change goes
// through it.
type Service struct {
	Disputes DisputeStore
	Evidence EvidenceStore
	Comments CommentStore
	Votes    VoteStore
	Members  Membership
	Files    FileStorage
	Notifier Notifier
	Audit    AuditLog
	Policy   Policy

	// Now is overridable for tests
	Now func() time.Time
}

// FileInput is the body of a new dispute
type FileInput struct {
	ChamaID            string             `json:"chamaId"`
	DisputeType        models.DisputeType `json:"disputeType"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	FiledAgainstUserID string             `json:"filedAgainstUserId,omitempty"`
}

// StatusOverride is the body of an administrative status change. Entering
// discussion or voting needs that phase's deadline, and voting also needs
// requiredVotes, unless the dispute is already in the phase.
type StatusOverride struct {
	Status             models.DisputeStatus  `json:"status"`
	Reason             string                `json:"reason"`
	ResolutionType     models.ResolutionType `json:"resolutionType,omitempty"`
	DiscussionDeadline *time.Time            `json:"discussionDeadline,omitempty"`
	VotingDeadline     *time.Time            `json:"votingDeadline,omitempty"`
	RequiredVotes      *int                  `json:"requiredVotes,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// FileDispute creates a dispute in the filed state
func (s *Service) FileDispute(ctx context.Context, actor Actor, in FileInput) (*models.Dispute, error) {
	in.ChamaID = strings.TrimSpace(in.ChamaID)
	if in.ChamaID == "" {
		return nil, invalidArgument("chamaId is required")
	}
	caps, err := s.capabilities(ctx, in.ChamaID, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaMember) {
		return nil, forbidden("only active chama members can file disputes")
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalidArgument("title is required")
	}
	if !in.DisputeType.Valid() {
		return nil, invalidArgument("unknown disputeType %q", in.DisputeType)
	}
	if in.FiledAgainstUserID != "" {
		if in.FiledAgainstUserID == actor.UserID {
			return nil, invalidArgument("a member cannot file a dispute against themselves")
		}
		active, err := s.Members.IsActiveMember(ctx, in.ChamaID, in.FiledAgainstUserID)
		if err != nil {
			return nil, unavailable("membership lookup", err)
		}
		if !active {
			return nil, invalidArgument("filedAgainstUserId is not an active member of the chama")
		}
	}

	now := s.now()
	d := &models.Dispute{
		ID:                 primitive.NewObjectID(),
		ChamaID:            in.ChamaID,
		FiledByUserID:      actor.UserID,
		FiledAgainstUserID: in.FiledAgainstUserID,
		DisputeType:        in.DisputeType,
		Title:              in.Title,
		Description:        strings.TrimSpace(in.Description),
		Status:             models.StatusFiled,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Disputes.Insert(ctx, d); err != nil {
		return nil, unavailable("insert dispute", err)
	}

	s.audit(ctx, d, actor.UserID, caps.Primary(), "filed", "", models.StatusFiled, "")
	s.notify(ctx, d, TemplateDisputeFiled, s.officersAndParties(ctx, d), nil)
	return d, nil
}

// StartDiscussion moves a filed dispute into discussion with a deadline
func (s *Service) StartDiscussion(ctx context.Context, actor Actor, id primitive.ObjectID, deadline time.Time) (*models.Dispute, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaOfficer) {
		return nil, forbidden("only chama officers can start discussion")
	}
	if d.Status != models.StatusFiled {
		return nil, invalidTransition(string(d.Status), "start discussion")
	}
	if deadline.IsZero() || !deadline.After(s.now()) {
		return nil, invalidArgument("discussionDeadline must be in the future")
	}

	next := *d
	dl := deadline.UTC()
	next.Status = models.StatusDiscussion
	next.DiscussionDeadline = &dl
	next.VotingDeadline = nil
	if err := s.commit(ctx, d, &next); err != nil {
		return nil, err
	}

	s.audit(ctx, &next, actor.UserID, caps.Primary(), "start_discussion", d.Status, next.Status, "deadline "+dl.Format(time.RFC3339))
	s.notify(ctx, &next, TemplateDiscussionStarted, s.memberIDs(ctx, next.ChamaID, false), map[string]string{
		"deadline": dl.Format(time.RFC3339),
	})
	return &next, nil
}

// StartVoting moves a dispute from discussion into voting
func (s *Service) StartVoting(ctx context.Context, actor Actor, id primitive.ObjectID, deadline time.Time, requiredVotes int) (*models.Dispute, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaOfficer) {
		return nil, forbidden("only chama officers can start voting")
	}
	if d.Status != models.StatusDiscussion {
		return nil, invalidTransition(string(d.Status), "start voting")
	}
	if deadline.IsZero() || !deadline.After(s.now()) {
		return nil, invalidArgument("votingDeadline must be in the future")
	}
	if requiredVotes < 1 {
		return nil, invalidArgument("requiredVotes must be at least 1")
	}

	next := *d
	dl := deadline.UTC()
	rv := requiredVotes
	next.Status = models.StatusVoting
	next.VotingDeadline = &dl
	next.RequiredVotes = &rv
	next.DiscussionDeadline = nil
	if err := s.commit(ctx, d, &next); err != nil {
		return nil, err
	}

	s.audit(ctx, &next, actor.UserID, caps.Primary(), "start_voting", d.Status, next.Status,
		fmt.Sprintf("deadline %s, requiredVotes %d", dl.Format(time.RFC3339), rv))
	s.notify(ctx, &next, TemplateVotingStarted, s.eligibleVoters(ctx, &next), map[string]string{
		"deadline":      dl.Format(time.RFC3339),
		"requiredVotes": fmt.Sprint(rv),
	})
	return &next, nil
}

// CastVote records a member's vote and finalizes the dispute early when the
// vote brings it to quorum. A second vote from the same member is rejected.
func (s *Service) CastVote(ctx context.Context, actor Actor, id primitive.ObjectID, decision models.VoteDecision, reason string) (*models.Vote, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaMember) {
		return nil, forbidden("only active chama members can vote")
	}
	if d.Status != models.StatusVoting {
		return nil, invalidTransition(string(d.Status), "cast vote")
	}
	now := s.now()
	if d.VotingDeadline != nil && !now.Before(*d.VotingDeadline) {
		return nil, conflict("voting closed at %s", d.VotingDeadline.Format(time.RFC3339))
	}
	if !decision.Valid() {
		return nil, invalidArgument("decision must be one of for, against, abstain")
	}
	if !s.Policy.AllowPartyVotes && d.IsParty(actor.UserID) {
		return nil, forbidden("parties to a dispute cannot vote on it")
	}

	v := &models.Vote{
		ID:        primitive.NewObjectID(),
		DisputeID: d.ID,
		UserID:    actor.UserID,
		Decision:  decision,
		Reason:    strings.TrimSpace(reason),
		CastAt:    now,
	}
	if err := s.Votes.Insert(ctx, v); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, conflict("member %s has already voted on dispute %s", actor.UserID, d.ID.Hex())
		}
		return nil, unavailable("insert vote", err)
	}
	zap.S().Infow("vote cast",
		"disputeId", d.ID.Hex(),
		"userId", actor.UserID,
		"decision", decision)

	// Early quorum. Losing the finalize race to another voter is fine.
	if _, err := s.Finalize(ctx, d.ID); err != nil && !errors.Is(err, ErrVotingOpen) {
		zap.S().Warnw("eager finalize failed", "disputeId", d.ID.Hex(), "error", err)
	}
	return v, nil
}

// Finalize closes the voting phase. With quorum the dispute is resolved with
// the tally outcome; past the deadline without quorum it is escalated. A
// dispute that is no longer in voting is returned unchanged, so repeated
// calls are safe. Only the call that performs the transition notifies.
func (s *Service) Finalize(ctx context.Context, id primitive.ObjectID) (*models.Dispute, error) {
	for attempt := 0; attempt < maxFinalizeAttempts; attempt++ {
		d, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.Status != models.StatusVoting {
			return d, nil
		}

		votes, err := s.Votes.ListByDispute(ctx, d.ID)
		if err != nil {
			return nil, unavailable("list votes", err)
		}
		required := 1
		if d.RequiredVotes != nil && *d.RequiredVotes > 0 {
			required = *d.RequiredVotes
		}
		tally := Tally(votes, required)

		now := s.now()
		deadlinePassed := d.VotingDeadline != nil && !now.Before(*d.VotingDeadline)

		next := *d
		next.VotingDeadline = nil
		switch {
		case tally.QuorumMet:
			next.Status = models.StatusResolved
			next.ResolutionType = tally.Outcome
			next.ResolvedAt = &now
			next.ResolvedByUserID = SystemActorID
			next.DecisionNotes = fmt.Sprintf("vote closed: %d for, %d against, %d abstain", tally.For, tally.Against, tally.Abstain)
		case deadlinePassed:
			next.Status = models.StatusEscalated
			next.Escalation = &models.Escalation{
				EscalatedByUserID: SystemActorID,
				Reason:            EscalationReasonQuorumNotReached,
				EscalatedAt:       now,
			}
		default:
			return d, ErrVotingOpen
		}

		next.Version = d.Version + 1
		next.UpdatedAt = now
		ok, err := s.Disputes.Replace(ctx, &next, d.Version)
		if err != nil {
			return nil, unavailable("finalize dispute", err)
		}
		if !ok {
			continue
		}

		payload := map[string]string{
			"for":      fmt.Sprint(tally.For),
			"against":  fmt.Sprint(tally.Against),
			"abstain":  fmt.Sprint(tally.Abstain),
			"required": fmt.Sprint(tally.Required),
		}
		if next.Status == models.StatusResolved {
			payload["resolutionType"] = string(next.ResolutionType)
			s.audit(ctx, &next, SystemActorID, "", "finalize", d.Status, next.Status, next.DecisionNotes)
			s.notify(ctx, &next, TemplateDisputeResolved, s.memberIDs(ctx, next.ChamaID, false), payload)
		} else {
			payload["reason"] = EscalationReasonQuorumNotReached
			s.audit(ctx, &next, SystemActorID, "", "finalize", d.Status, next.Status, EscalationReasonQuorumNotReached)
			s.notify(ctx, &next, TemplateDisputeEscalated, s.officersAndParties(ctx, &next), payload)
		}
		zap.S().Infow("dispute finalized",
			"disputeId", next.ID.Hex(),
			"status", next.Status,
			"resolutionType", next.ResolutionType,
			"votes", tally.Total,
			"required", tally.Required)
		return &next, nil
	}
	return nil, conflict("dispute %s kept changing while finalizing", id.Hex())
}

// ResolveDispute lets an officer close a dispute directly, for example after
// a mutual settlement. Votes and comments are frozen afterwards.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, id primitive.ObjectID, resolutionType models.ResolutionType, notes string) (*models.Dispute, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaOfficer) {
		return nil, forbidden("only chama officers can resolve disputes")
	}
	switch d.Status {
	case models.StatusFiled, models.StatusDiscussion, models.StatusVoting:
	default:
		return nil, invalidTransition(string(d.Status), "resolve")
	}
	if !resolutionType.Valid() {
		return nil, invalidArgument("resolutionType must be one of upheld, dismissed, settled")
	}

	now := s.now()
	next := *d
	next.Status = models.StatusResolved
	next.ResolutionType = resolutionType
	next.DecisionNotes = strings.TrimSpace(notes)
	next.ResolvedAt = &now
	next.ResolvedByUserID = actor.UserID
	next.DiscussionDeadline = nil
	next.VotingDeadline = nil
	if err := s.commit(ctx, d, &next); err != nil {
		return nil, err
	}

	s.audit(ctx, &next, actor.UserID, caps.Primary(), "resolve", d.Status, next.Status, string(resolutionType))
	s.notify(ctx, &next, TemplateDisputeResolved, s.memberIDs(ctx, next.ChamaID, false), map[string]string{
		"resolutionType": string(resolutionType),
	})
	return &next, nil
}

// UpdateDisputeStatus is the administrative correction path. It skips the
// normal guards but never leaves a terminal status, and it is always
// audit-logged with the admin identity.
func (s *Service) UpdateDisputeStatus(ctx context.Context, actor Actor, id primitive.ObjectID, in StatusOverride) (*models.Dispute, error) {
	status, reason, resolutionType := in.Status, in.Reason, in.ResolutionType
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RolePlatformAdmin) && !caps.ChamaAdmin() {
		return nil, forbidden("only platform admins and chama admins can override status")
	}
	if d.Status.Terminal() {
		return nil, invalidTransition(string(d.Status), "override status")
	}
	if !status.Valid() {
		return nil, invalidArgument("unknown status %q", status)
	}

	now := s.now()
	reason = strings.TrimSpace(reason)
	next := *d
	next.Status = status
	next.DiscussionDeadline = nil
	next.VotingDeadline = nil
	switch status {
	case models.StatusDiscussion:
		dl, err := phaseDeadline(in.DiscussionDeadline, d.DiscussionDeadline, d.Status == status, now, "discussionDeadline")
		if err != nil {
			return nil, err
		}
		next.DiscussionDeadline = dl
	case models.StatusVoting:
		dl, err := phaseDeadline(in.VotingDeadline, d.VotingDeadline, d.Status == status, now, "votingDeadline")
		if err != nil {
			return nil, err
		}
		rv := in.RequiredVotes
		if rv == nil && d.Status == status {
			rv = d.RequiredVotes
		}
		if rv == nil || *rv < 1 {
			return nil, invalidArgument("requiredVotes must be at least 1")
		}
		required := *rv
		next.VotingDeadline = dl
		next.RequiredVotes = &required
	}
	if status == models.StatusResolved {
		if resolutionType == "" {
			resolutionType = models.ResolutionSettled
		}
		if !resolutionType.Valid() {
			return nil, invalidArgument("resolutionType must be one of upheld, dismissed, settled")
		}
		next.ResolutionType = resolutionType
		next.ResolvedAt = &now
		next.ResolvedByUserID = actor.UserID
		next.DecisionNotes = reason
	} else {
		next.ResolutionType = ""
		next.ResolvedAt = nil
		next.ResolvedByUserID = ""
	}
	if status == models.StatusEscalated && next.Escalation == nil {
		why := reason
		if why == "" {
			why = "administrative override"
		}
		next.Escalation = &models.Escalation{EscalatedByUserID: actor.UserID, Reason: why, EscalatedAt: now}
	}
	if err := s.commit(ctx, d, &next); err != nil {
		return nil, err
	}

	zap.S().Infow("administrative status override",
		"disputeId", d.ID.Hex(),
		"adminId", actor.UserID,
		"role", caps.Primary(),
		"from", d.Status,
		"to", next.Status,
		"reason", reason)
	s.audit(ctx, &next, actor.UserID, caps.Primary(), "status_override", d.Status, next.Status, reason)
	s.notify(ctx, &next, TemplateStatusOverridden, s.officersAndParties(ctx, &next), map[string]string{
		"previousStatus": string(d.Status),
		"reason":         reason,
	})
	return &next, nil
}

// phaseDeadline picks the deadline of a phase entered by override. A given
// deadline must be in the future. Without one the current deadline is kept
// when the dispute already is in that phase.
func phaseDeadline(given, current *time.Time, samePhase bool, now time.Time, field string) (*time.Time, error) {
	if given != nil {
		if !given.After(now) {
			return nil, invalidArgument("%s must be in the future", field)
		}
		dl := given.UTC()
		return &dl, nil
	}
	if samePhase && current != nil {
		dl := *current
		return &dl, nil
	}
	return nil, invalidArgument("%s is required to enter this phase", field)
}

func (s *Service) load(ctx context.Context, id primitive.ObjectID) (*models.Dispute, error) {
	d, err := s.Disputes.FindByID(ctx, id)
	if err != nil {
		return nil, unavailable("find dispute "+id.Hex(), err)
	}
	return d, nil
}

func (s *Service) loadWithCaps(ctx context.Context, id primitive.ObjectID, actor Actor) (*models.Dispute, Capabilities, error) {
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, Capabilities{}, err
	}
	caps, err := s.capabilities(ctx, d.ChamaID, actor)
	if err != nil {
		return nil, Capabilities{}, err
	}
	return d, caps, nil
}

// commit writes next over cur. A concurrent writer turns into a Conflict.
func (s *Service) commit(ctx context.Context, cur, next *models.Dispute) error {
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()
	ok, err := s.Disputes.Replace(ctx, next, cur.Version)
	if err != nil {
		return unavailable("update dispute", err)
	}
	if !ok {
		return conflict("dispute %s was modified concurrently, reload and retry", cur.ID.Hex())
	}
	return nil
}

func (s *Service) audit(ctx context.Context, d *models.Dispute, actorID string, role Role, action string, from, to models.DisputeStatus, details string) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Record(ctx, models.DisputeActivity{
		ID:         primitive.NewObjectID(),
		DisputeID:  d.ID,
		ChamaID:    d.ChamaID,
		ActorID:    actorID,
		ActorRole:  string(role),
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Details:    details,
		CreatedAt:  s.now(),
	})
	if err != nil {
		zap.S().Errorw("failed to record dispute activity", "disputeId", d.ID.Hex(), "action", action, "error", err)
	}
}
