package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/config"
	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

// multipartOverhead is the form room allowed on top of the evidence size limit
const multipartOverhead = 1 << 20

// Dispute exported for testing purposes
type Dispute struct {
	Service *disputes.Service
	Metrics *api.Metrics
}

type startDiscussionRequest struct {
	DiscussionDeadline time.Time `json:"discussionDeadline"`
}

type startVotingRequest struct {
	VotingDeadline time.Time `json:"votingDeadline"`
	RequiredVotes  int       `json:"requiredVotes"`
}

type voteRequest struct {
	Decision models.VoteDecision `json:"decision"`
	Reason   string              `json:"reason"`
}

type commentRequest struct {
	Content string `json:"content"`
}

type resolveRequest struct {
	ResolutionType models.ResolutionType `json:"resolutionType"`
	DecisionNotes  string                `json:"decisionNotes"`
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

type votesResponse struct {
	Votes []models.Vote        `json:"votes"`
	Tally disputes.TallyResult `json:"tally"`
}

// CreateDisputeHandler files a new dispute
func (d Dispute) CreateDisputeHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in disputes.FileInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.FileDispute(ctx, actor, in)
	if err != nil {
		writeError(w, "failed to file dispute", err)
		return
	}
	zap.S().Infow("dispute filed", "disputeId", dispute.ID.Hex(), "chamaId", dispute.ChamaID, "userId", actor.UserID)
	writeJSON(w, http.StatusCreated, dispute)
}

// DisputeByIDHandler returns a dispute by ID
func (d Dispute) DisputeByIDHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.GetDispute(ctx, actor, id)
	if err != nil {
		writeError(w, "failed to get dispute by ID", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// ChamaDisputesHandler pages through a chama's disputes
func (d Dispute) ChamaDisputesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	chamaID := mux.Vars(r)["chamaId"]
	status := models.DisputeStatus(r.URL.Query().Get("status"))
	limit, offset := pagination(r)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	ds, err := d.Service.ListChamaDisputes(ctx, actor, chamaID, status, limit, offset)
	if err != nil {
		writeError(w, "failed to get chama disputes", err)
		return
	}
	if len(ds) == 0 {
		ds = []models.Dispute{}
	}
	writeJSON(w, http.StatusOK, ds)
}

// MyDisputesHandler returns disputes the caller filed or is named in
func (d Dispute) MyDisputesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	chamaID := r.URL.Query().Get("chamaId")
	status := models.DisputeStatus(r.URL.Query().Get("status"))

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	ds, err := d.Service.ListMyDisputes(ctx, actor, chamaID, status)
	if err != nil {
		writeError(w, "failed to get user disputes", err)
		return
	}
	if len(ds) == 0 {
		ds = []models.Dispute{}
	}
	writeJSON(w, http.StatusOK, ds)
}

// SubmitEvidenceHandler uploads a multipart `file` with a `title`
func (d Dispute) SubmitEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.Service.Policy.EvidenceMaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		config.ErrorStatus("missing evidence file", http.StatusBadRequest, w, err)
		return
	}
	defer file.Close()

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	evidence, err := d.Service.SubmitEvidence(ctx, actor, id, disputes.EvidenceInput{
		Title:    r.FormValue("title"),
		Filename: header.Filename,
		File:     file,
	})
	if err != nil {
		writeError(w, "failed to submit evidence", err)
		return
	}
	writeJSON(w, http.StatusCreated, evidence)
}

// EvidenceHandler lists a dispute's evidence
func (d Dispute) EvidenceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	evidence, err := d.Service.ListEvidence(ctx, actor, id)
	if err != nil {
		writeError(w, "failed to get evidence", err)
		return
	}
	if len(evidence) == 0 {
		evidence = []models.Evidence{}
	}
	writeJSON(w, http.StatusOK, evidence)
}

// AddCommentHandler appends a comment to the discussion
func (d Dispute) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	comment, err := d.Service.AddComment(ctx, actor, id, req.Content)
	if err != nil {
		writeError(w, "failed to add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// CommentsHandler lists a dispute's comments oldest first
func (d Dispute) CommentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	comments, err := d.Service.ListComments(ctx, actor, id)
	if err != nil {
		writeError(w, "failed to get comments", err)
		return
	}
	if len(comments) == 0 {
		comments = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// StartDiscussionHandler opens the discussion phase
func (d Dispute) StartDiscussionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req startDiscussionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.StartDiscussion(ctx, actor, id, req.DiscussionDeadline)
	if err != nil {
		writeError(w, "failed to start discussion", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// StartVotingHandler opens the voting phase
func (d Dispute) StartVotingHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req startVotingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.StartVoting(ctx, actor, id, req.VotingDeadline, req.RequiredVotes)
	if err != nil {
		writeError(w, "failed to start voting", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// CastVoteHandler records the caller's vote
func (d Dispute) CastVoteHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	vote, err := d.Service.CastVote(ctx, actor, id, req.Decision, req.Reason)
	if err != nil {
		writeError(w, "failed to cast vote", err)
		return
	}
	if d.Metrics != nil {
		d.Metrics.VotesCast.WithLabelValues(string(vote.Decision)).Inc()
	}
	writeJSON(w, http.StatusCreated, vote)
}

// VotesHandler returns the votes and the current tally
func (d Dispute) VotesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	votes, tally, err := d.Service.ListVotes(ctx, actor, id)
	if err != nil {
		writeError(w, "failed to get votes", err)
		return
	}
	if len(votes) == 0 {
		votes = []models.Vote{}
	}
	writeJSON(w, http.StatusOK, votesResponse{Votes: votes, Tally: tally})
}

// ResolveHandler resolves a dispute by officer decision
func (d Dispute) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.ResolveDispute(ctx, actor, id, req.ResolutionType, req.DecisionNotes)
	if err != nil {
		writeError(w, "failed to resolve dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// EscalateHandler sends a dispute to platform review
func (d Dispute) EscalateHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req escalateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.EscalateDispute(ctx, actor, id, req.Reason)
	if err != nil {
		writeError(w, "failed to escalate dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// UpdateStatusHandler is the chama admin override
func (d Dispute) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req disputes.StatusOverride
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := d.Service.UpdateDisputeStatus(ctx, actor, id, req)
	if err != nil {
		writeError(w, "failed to update dispute status", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}
