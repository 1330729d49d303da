package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/api/scheduler"
	"github.com/linesmerrill/chama-disputes-api/config"
	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sched    *scheduler.Scheduler
	store    *memDisputes
	votes    *memVotes
	comments *memComments
	members  *staticMembers
	notifier *recordingNotifier
	metrics  *api.Metrics
}

func newFixture() *fixture {
	f := &fixture{
		store:    &memDisputes{byID: map[primitive.ObjectID]models.Dispute{}},
		votes:    &memVotes{byDispute: map[primitive.ObjectID][]models.Vote{}},
		comments: &memComments{byDispute: map[primitive.ObjectID][]models.Comment{}},
		members: &staticMembers{
			rosters: map[string][]models.ChamaMember{
				"c1": {
					{UserID: "chair", Role: models.ChamaRoleAdmin},
					{UserID: "filer", Role: models.ChamaRoleMember},
					{UserID: "accused", Role: models.ChamaRoleMember},
					{UserID: "v1", Role: models.ChamaRoleMember},
					{UserID: "v2", Role: models.ChamaRoleMember},
					{UserID: "v3", Role: models.ChamaRoleMember},
				},
			},
			broken: map[string]bool{},
		},
		notifier: &recordingNotifier{},
		metrics:  api.NewMetrics(),
	}
	svc := &disputes.Service{
		Disputes: f.store,
		Votes:    f.votes,
		Comments: f.comments,
		Members:  f.members,
		Notifier: f.notifier,
		Policy:   disputes.DefaultPolicy(),
		Now:      func() time.Time { return now },
	}
	f.sched = scheduler.NewScheduler(svc, &memMarks{last: map[markerKey]time.Time{}}, nil, f.metrics, config.Default())
	f.sched.Now = func() time.Time { return now }
	return f
}

func (f *fixture) dispute(chamaID string, status models.DisputeStatus, deadline time.Time, requiredVotes int) models.Dispute {
	d := models.Dispute{
		ID:                 primitive.NewObjectID(),
		ChamaID:            chamaID,
		FiledByUserID:      "filer",
		FiledAgainstUserID: "accused",
		DisputeType:        models.DisputeTypePayment,
		Title:              "Missed payout",
		Status:             status,
		Version:            2,
		CreatedAt:          now.Add(-7 * 24 * time.Hour),
	}
	if status == models.StatusVoting {
		d.VotingDeadline = &deadline
		d.RequiredVotes = &requiredVotes
	} else {
		d.DiscussionDeadline = &deadline
	}
	f.store.put(d)
	return d
}

func (f *fixture) vote(d models.Dispute, userID string, decision models.VoteDecision) {
	_ = f.votes.Insert(context.Background(), &models.Vote{ID: primitive.NewObjectID(), DisputeID: d.ID, UserID: userID, Decision: decision, CastAt: now.Add(-time.Hour)})
}

func TestRunOverdue_TieIsDismissed(t *testing.T) {
	f := newFixture()
	d := f.dispute("c1", models.StatusVoting, now.Add(-time.Hour), 4)
	f.vote(d, "chair", models.VoteFor)
	f.vote(d, "v1", models.VoteFor)
	f.vote(d, "v2", models.VoteAgainst)
	f.vote(d, "v3", models.VoteAgainst)

	require.NoError(t, f.sched.RunOverdue(context.Background()))

	got := f.store.get(d.ID)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.Equal(t, models.ResolutionDismissed, got.ResolutionType)
	assert.Nil(t, got.VotingDeadline)
	assert.Len(t, f.notifier.byTemplate(disputes.TemplateDisputeResolved), 1)

	// a second run finds nothing left in voting
	require.NoError(t, f.sched.RunOverdue(context.Background()))
	assert.Len(t, f.notifier.byTemplate(disputes.TemplateDisputeResolved), 1)
}

func TestRunOverdue_EscalatesWithoutQuorum(t *testing.T) {
	f := newFixture()
	d := f.dispute("c1", models.StatusVoting, now.Add(-time.Minute), 3)
	f.vote(d, "v1", models.VoteFor)

	require.NoError(t, f.sched.RunOverdue(context.Background()))

	got := f.store.get(d.ID)
	assert.Equal(t, models.StatusEscalated, got.Status)
	require.NotNil(t, got.Escalation)
	assert.Equal(t, disputes.EscalationReasonQuorumNotReached, got.Escalation.Reason)
	assert.Len(t, f.notifier.byTemplate(disputes.TemplateDisputeEscalated), 1)
}

func TestRunOverdue_DiscussionAlertsOfficersOnce(t *testing.T) {
	f := newFixture()
	d := f.dispute("c1", models.StatusDiscussion, now.Add(-2*time.Hour), 0)

	require.NoError(t, f.sched.RunOverdue(context.Background()))
	require.NoError(t, f.sched.RunOverdue(context.Background()))

	assert.Equal(t, models.StatusDiscussion, f.store.get(d.ID).Status, "discussion never advances on its own")
	alerts := f.notifier.byTemplate(disputes.TemplateDiscussionOverdue)
	require.Len(t, alerts, 1)
	assert.Equal(t, []string{"chair"}, alerts[0].Recipients)
	assert.Equal(t, now.Add(-2*time.Hour).Format(time.RFC3339), alerts[0].Payload["deadline"])
}

func TestRunReminders_VotingTargetsMembersWhoHaveNotVoted(t *testing.T) {
	f := newFixture()
	d := f.dispute("c1", models.StatusVoting, now.Add(6*time.Hour), 3)
	f.vote(d, "v1", models.VoteAgainst)

	require.NoError(t, f.sched.RunReminders(context.Background()))

	reminders := f.notifier.byTemplate(disputes.TemplateVotingReminder)
	require.Len(t, reminders, 1)
	assert.ElementsMatch(t, []string{"chair", "v2", "v3"}, reminders[0].Recipients)
	assert.Equal(t, d.ID.Hex(), reminders[0].Payload["disputeId"])
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.RemindersSent.WithLabelValues("voting")))

	// the markers hold for the cooldown
	require.NoError(t, f.sched.RunReminders(context.Background()))
	assert.Len(t, f.notifier.byTemplate(disputes.TemplateVotingReminder), 1)

	// a later hourly run inside the cooldown stays quiet too
	f.sched.Now = func() time.Time { return now.Add(5 * time.Hour) }
	require.NoError(t, f.sched.RunReminders(context.Background()))
	assert.Len(t, f.notifier.byTemplate(disputes.TemplateVotingReminder), 1)
}

func TestRunReminders_DiscussionSkipsRecentCommenters(t *testing.T) {
	f := newFixture()
	d := f.dispute("c1", models.StatusDiscussion, now.Add(3*time.Hour), 0)
	_ = f.comments.Insert(context.Background(), &models.Comment{ID: primitive.NewObjectID(), DisputeID: d.ID, UserID: "filer", Content: "I paid on the 3rd", CreatedAt: now.Add(-time.Hour)})
	_ = f.comments.Insert(context.Background(), &models.Comment{ID: primitive.NewObjectID(), DisputeID: d.ID, UserID: "v1", Content: "receipt?", CreatedAt: now.Add(-48 * time.Hour)})

	require.NoError(t, f.sched.RunReminders(context.Background()))

	reminders := f.notifier.byTemplate(disputes.TemplateDiscussionReminder)
	require.Len(t, reminders, 1)
	assert.ElementsMatch(t, []string{"accused", "v1", "chair"}, reminders[0].Recipients)
}

func TestRunReminders_IgnoresDistantDeadlines(t *testing.T) {
	f := newFixture()
	f.dispute("c1", models.StatusVoting, now.Add(48*time.Hour), 3)
	f.dispute("c1", models.StatusDiscussion, now.Add(-time.Hour), 0)

	require.NoError(t, f.sched.RunReminders(context.Background()))

	assert.Empty(t, f.notifier.sent)
}

func TestRunReminders_ContinuesPastFailingDispute(t *testing.T) {
	f := newFixture()
	f.members.broken["c2"] = true
	f.dispute("c2", models.StatusVoting, now.Add(time.Hour), 3)
	ok := f.dispute("c1", models.StatusVoting, now.Add(2*time.Hour), 3)

	err := f.sched.RunReminders(context.Background())

	assert.ErrorIs(t, err, disputes.ErrUnavailable)
	reminders := f.notifier.byTemplate(disputes.TemplateVotingReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, ok.ID.Hex(), reminders[0].Payload["disputeId"])
}

func TestRun_SkipsWhileAnotherInstanceHoldsTheLock(t *testing.T) {
	f := newFixture()
	f.dispute("c1", models.StatusVoting, now.Add(time.Hour), 3)
	lock := &heldLock{held: true}
	f.sched.Lock = lock

	require.NoError(t, f.sched.Run(scheduler.PassReminders))
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScanRuns.WithLabelValues("reminders", "skipped")))

	lock.held = false
	require.NoError(t, f.sched.Run(scheduler.PassReminders))
	assert.Len(t, f.notifier.byTemplate(disputes.TemplateVotingReminder), 1)
	assert.Equal(t, 1, lock.released)
	assert.False(t, lock.held)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScanRuns.WithLabelValues("reminders", "ok")))
}

func TestRun_UnknownPass(t *testing.T) {
	f := newFixture()
	assert.EqualError(t, f.sched.Run("weekly"), `unknown pass "weekly"`)
}

func TestRunOverdue_AlertsEveryDailyRunDespiteJitter(t *testing.T) {
	f := newFixture()
	f.dispute("c1", models.StatusDiscussion, now.Add(-2*time.Hour), 0)

	runs := []time.Duration{
		12 * time.Millisecond,
		time.Hour, // a manual scan the same day
		24*time.Hour + 8*time.Millisecond,
		48*time.Hour - 2*time.Second,
	}
	for _, at := range runs {
		f.sched.Now = func() time.Time { return now.Add(at) }
		require.NoError(t, f.sched.RunOverdue(context.Background()))
	}

	assert.Len(t, f.notifier.byTemplate(disputes.TemplateDiscussionOverdue), 3)
}

func TestRunOverdue_LeavesDisputeStillOpenOnServiceClock(t *testing.T) {
	f := newFixture()
	d := f.dispute("c1", models.StatusVoting, now.Add(-time.Minute), 3)
	f.sched.Service.Now = func() time.Time { return now.Add(-2 * time.Minute) }

	require.NoError(t, f.sched.RunOverdue(context.Background()))

	assert.Equal(t, models.StatusVoting, f.store.get(d.ID).Status)
	assert.Empty(t, f.notifier.sent)
}
