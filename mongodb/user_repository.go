package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nimbusid/oauthd/domain"
)

// UserRepository stores end-user profiles keyed by email for upsert.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

var _ domain.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.coll.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error retrieving user")
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return &user, nil
}

// UpsertByEmail creates the user on first sight of the email and refreshes
// the mutable profile fields afterwards. Every call marks the account
// verified and active, since it is only reached after a completed sign-in.
// The stored id is assigned on insert and never changes, even if callers
// later supply a different preferred id.
func (r *UserRepository) UpsertByEmail(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user.Email == "" {
		return nil, errors.New("user email cannot be empty")
	}
	now := time.Now().UTC()
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}

	set := bson.M{
		"display_name":    user.DisplayName,
		"provider":        user.Provider,
		"email_verified":  true,
		"is_active":       true,
		"last_sign_in_at": now,
		"updated_at":      now,
	}
	if user.PhotoURL != "" {
		set["photo_url"] = user.PhotoURL
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored domain.User
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"email": user.Email},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"_id":        id,
				"email":      user.Email,
				"created_at": now,
			},
		},
		opts).Decode(&stored)
	if err != nil {
		log.Error().Err(err).Msg("Error upserting user")
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &stored, nil
}
