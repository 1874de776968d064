package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReviewRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewReviewRepository(db *mongo.Database, logger observability.Logger) *ReviewRepository {
	return &ReviewRepository{
		coll:   db.Collection("reviews"),
		logger: logger,
	}
}

type ReviewDoc struct {
	ID          uuid.UUID `bson:"_id"`
	CampID      uuid.UUID `bson:"camp_id"`
	AuthorEmail string    `bson:"author_email"`
	Rating      int       `bson:"rating"`
	Comment     string    `bson:"comment"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (r *ReviewRepository) Create(ctx context.Context, review ReviewDoc) error {
	review.CreatedAt = time.Now()
	_, err := r.coll.InsertOne(ctx, review)
	if err != nil {
		r.logger.WithError(err).Error("failed to insert review")
	}
	return err
}

func (r *ReviewRepository) List(ctx context.Context) ([]ReviewDoc, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ReviewDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *ReviewRepository) ListByCamp(ctx context.Context, campID uuid.UUID) ([]ReviewDoc, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"camp_id": campID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ReviewDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
