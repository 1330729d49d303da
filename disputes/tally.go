package disputes

import (
	"github.com/linesmerrill/chama-disputes-api/models"
)

// TallyResult is the outcome of counting a dispute's votes
type TallyResult struct {
	For       int                   `json:"for"`
	Against   int                   `json:"against"`
	Abstain   int                   `json:"abstain"`
	Total     int                   `json:"total"`
	Required  int                   `json:"required"`
	QuorumMet bool                  `json:"quorumMet"`
	Outcome   models.ResolutionType `json:"outcome"`
}

// Tally counts votes against the quorum threshold. It is a pure function of
// the vote set: ordering does not matter, and if a user appears more than
// once only their earliest vote counts. Abstentions count toward quorum but
// not toward the majority. A tie is dismissed.
func Tally(votes []models.Vote, requiredVotes int) TallyResult {
	earliest := make(map[string]models.Vote, len(votes))
	for _, v := range votes {
		prev, seen := earliest[v.UserID]
		if !seen || v.CastAt.Before(prev.CastAt) || (v.CastAt.Equal(prev.CastAt) && v.ID.Hex() < prev.ID.Hex()) {
			earliest[v.UserID] = v
		}
	}

	res := TallyResult{Required: requiredVotes}
	for _, v := range earliest {
		switch v.Decision {
		case models.VoteFor:
			res.For++
		case models.VoteAgainst:
			res.Against++
		case models.VoteAbstain:
			res.Abstain++
		default:
			continue
		}
		res.Total++
	}

	res.QuorumMet = requiredVotes > 0 && res.Total >= requiredVotes
	if res.For > res.Against {
		res.Outcome = models.ResolutionUpheld
	} else {
		res.Outcome = models.ResolutionDismissed
	}
	return res
}
