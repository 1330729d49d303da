package databases

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/chama-disputes-api/disputes"
)

type mongoPaginate struct {
	limit  int64
	offset int64
}

func newMongoPaginate(limit, offset int64) *mongoPaginate {
	return &mongoPaginate{
		limit:  limit,
		offset: offset,
	}
}

func (mp *mongoPaginate) getPaginatedOpts(sort bson.D) *options.FindOptions {
	l := mp.limit
	skip := mp.offset
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}
	if len(sort) > 0 {
		fOpt.Sort = sort
	}

	return &fOpt
}

// notFound maps a missing document to disputes.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return disputes.ErrNotFound
	}
	return err
}

// duplicate maps a unique index violation to disputes.ErrConflict
func duplicate(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return disputes.ErrConflict
	}
	return err
}
