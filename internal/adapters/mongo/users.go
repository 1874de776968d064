package mongo

import (
	"context"
	"time"

	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RoleParticipant = "participant"
	RoleOrganizer   = "organizer"
	RoleAdmin       = "admin"
)

type UserRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewUserRepository(db *mongo.Database, logger observability.Logger) *UserRepository {
	return &UserRepository{
		coll:   db.Collection("users"),
		logger: logger,
	}
}

type UserDoc struct {
	Email     string    `bson:"_id"`
	Name      string    `bson:"name"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Upsert creates the user on first login and refreshes the name on later
// logins. The role is never touched here; promotion is a separate call.
func (u *UserRepository) Upsert(ctx context.Context, email, name string) (*UserDoc, error) {
	now := time.Now()
	update := bson.M{
		"$set":         bson.M{"name": name, "updated_at": now},
		"$setOnInsert": bson.M{"role": RoleParticipant, "created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc UserDoc
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"_id": email}, update, opts).Decode(&doc)
	if err != nil {
		u.logger.WithError(err).Error("failed to upsert user")
		return nil, err
	}
	return &doc, nil
}

func (u *UserRepository) Get(ctx context.Context, email string) (*UserDoc, error) {
	var doc UserDoc
	err := u.coll.FindOne(ctx, bson.M{"_id": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (u *UserRepository) List(ctx context.Context) ([]UserDoc, error) {
	cursor, err := u.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []UserDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (u *UserRepository) Delete(ctx context.Context, email string) error {
	result, err := u.coll.DeleteOne(ctx, bson.M{"_id": email})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (u *UserRepository) Promote(ctx context.Context, email string) error {
	result, err := u.coll.UpdateOne(ctx, bson.M{"_id": email}, bson.M{
		"$set": bson.M{"role": RoleAdmin, "updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (u *UserRepository) IsAdmin(ctx context.Context, email string) (bool, error) {
	doc, err := u.Get(ctx, email)
	if err == domain.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.Role == RoleAdmin, nil
}

func (u *UserRepository) Count(ctx context.Context) (int64, error) {
	return u.coll.EstimatedDocumentCount(ctx)
}
