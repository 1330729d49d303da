package disputes

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errNoFileStorage = errors.New("evidence storage is not configured")

// EvidenceInput is one uploaded evidence file
type EvidenceInput struct {
	Title    string
	Filename string
	File     io.Reader
}

func requireReader(caps Capabilities) error {
	if caps.Has(RoleChamaMember) || caps.Has(RolePlatformAdmin) {
		return nil
	}
	return forbidden("only chama members can view this dispute")
}

// GetDispute returns one dispute to a member of its chama or a platform admin
func (s *Service) GetDispute(ctx context.Context, actor Actor, id primitive.ObjectID) (*models.Dispute, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := requireReader(caps); err != nil {
		return nil, err
	}
	return d, nil
}

// ListChamaDisputes pages through a chama's disputes, newest first
func (s *Service) ListChamaDisputes(ctx context.Context, actor Actor, chamaID string, status models.DisputeStatus, limit, offset int64) ([]models.Dispute, error) {
	if chamaID == "" {
		return nil, invalidArgument("chamaId is required")
	}
	if status != "" && !status.Valid() {
		return nil, invalidArgument("unknown status %q", status)
	}
	caps, err := s.capabilities(ctx, chamaID, actor)
	if err != nil {
		return nil, err
	}
	if err := requireReader(caps); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	ds, err := s.Disputes.ListByChama(ctx, chamaID, status, limit, offset)
	if err != nil {
		return nil, unavailable("list chama disputes", err)
	}
	return ds, nil
}

// ListMyDisputes returns the disputes the actor filed or is named in
func (s *Service) ListMyDisputes(ctx context.Context, actor Actor, chamaID string, status models.DisputeStatus) ([]models.Dispute, error) {
	if actor.UserID == "" {
		return nil, forbidden("an authenticated user is required")
	}
	if status != "" && !status.Valid() {
		return nil, invalidArgument("unknown status %q", status)
	}
	ds, err := s.Disputes.ListByParty(ctx, actor.UserID, chamaID, status)
	if err != nil {
		return nil, unavailable("list my disputes", err)
	}
	return ds, nil
}

// SubmitEvidence uploads a file and attaches it to an open dispute
func (s *Service) SubmitEvidence(ctx context.Context, actor Actor, id primitive.ObjectID, in EvidenceInput) (*models.Evidence, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaMember) {
		return nil, forbidden("only chama members can submit evidence")
	}
	if d.Status.Terminal() {
		return nil, invalidTransition(string(d.Status), "submit evidence")
	}
	if in.File == nil {
		return nil, invalidArgument("file is required")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = in.Filename
	}
	if in.Title == "" {
		return nil, invalidArgument("title is required")
	}

	if s.Files == nil {
		return nil, unavailable("upload evidence", errNoFileStorage)
	}

	folder := path.Join(s.Policy.EvidenceFolder, d.ChamaID, d.ID.Hex())
	up, err := s.Files.Upload(ctx, in.File, in.Filename, folder, s.Policy.EvidenceAllowedTypes, s.Policy.EvidenceMaxBytes)
	if err != nil {
		return nil, unavailable("upload evidence", err)
	}

	e := &models.Evidence{
		ID:                primitive.NewObjectID(),
		DisputeID:         d.ID,
		Title:             in.Title,
		FileURL:           up.URL,
		FileType:          up.MimeType,
		FileSize:          up.Size,
		StorageKey:        up.Key,
		SubmittedByUserID: actor.UserID,
		CreatedAt:         s.now(),
	}
	if err := s.Evidence.Insert(ctx, e); err != nil {
		if derr := s.Files.Delete(ctx, up.Key); derr != nil {
			zap.S().Errorw("failed to remove orphaned evidence file", "key", up.Key, "error", derr)
		}
		return nil, unavailable("insert evidence", err)
	}

	s.audit(ctx, d, actor.UserID, caps.Primary(), "evidence_submitted", d.Status, d.Status, e.Title)
	return e, nil
}

// ListEvidence returns a dispute's evidence, oldest first
func (s *Service) ListEvidence(ctx context.Context, actor Actor, id primitive.ObjectID) ([]models.Evidence, error) {
	if _, err := s.GetDispute(ctx, actor, id); err != nil {
		return nil, err
	}
	ev, err := s.Evidence.ListByDispute(ctx, id)
	if err != nil {
		return nil, unavailable("list evidence", err)
	}
	return ev, nil
}

// AddComment appends a discussion comment to an open dispute
func (s *Service) AddComment(ctx context.Context, actor Actor, id primitive.ObjectID, content string) (*models.Comment, error) {
	d, caps, err := s.loadWithCaps(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !caps.Has(RoleChamaMember) {
		return nil, forbidden("only chama members can comment")
	}
	if d.Status.Terminal() {
		return nil, invalidTransition(string(d.Status), "comment")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalidArgument("content is required")
	}
	if max := s.Policy.MaxCommentLength; max > 0 && utf8.RuneCountInString(content) > max {
		return nil, invalidArgument("content exceeds %d characters", max)
	}

	c := &models.Comment{
		ID:        primitive.NewObjectID(),
		DisputeID: d.ID,
		UserID:    actor.UserID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.Comments.Insert(ctx, c); err != nil {
		return nil, unavailable("insert comment", err)
	}
	return c, nil
}

// ListComments returns a dispute's comments, oldest first
func (s *Service) ListComments(ctx context.Context, actor Actor, id primitive.ObjectID) ([]models.Comment, error) {
	if _, err := s.GetDispute(ctx, actor, id); err != nil {
		return nil, err
	}
	cs, err := s.Comments.ListByDispute(ctx, id)
	if err != nil {
		return nil, unavailable("list comments", err)
	}
	return cs, nil
}

// ListVotes returns the votes cast on a dispute together with the current
// tally
func (s *Service) ListVotes(ctx context.Context, actor Actor, id primitive.ObjectID) ([]models.Vote, TallyResult, error) {
	d, err := s.GetDispute(ctx, actor, id)
	if err != nil {
		return nil, TallyResult{}, err
	}
	votes, err := s.Votes.ListByDispute(ctx, id)
	if err != nil {
		return nil, TallyResult{}, unavailable("list votes", err)
	}
	required := 0
	if d.RequiredVotes != nil {
		required = *d.RequiredVotes
	}
	return votes, Tally(votes, required), nil
}

func page(limit, offset int64) (int64, int64) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
