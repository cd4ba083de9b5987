package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nimbusid/oauthd/domain"
)

// AuthCodeRepository stores one-time authorization codes.
type AuthCodeRepository struct {
	codes *mongo.Collection
}

func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{codes: db.Collection(CodesCollection)}
}

var _ domain.AuthCodeRepository = (*AuthCodeRepository)(nil)

func (r *AuthCodeRepository) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	if code.Code == "" {
		return errors.New("auth code value cannot be empty")
	}
	code.CreatedAt = time.Now().UTC()
	_, err := r.codes.InsertOne(ctx, code)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("authorization code already exists: %w", err)
		}
		log.Error().Err(err).Msg("Error saving authorization code")
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	log.Debug().Str("session_id", code.SessionID).Msg("Authorization code saved")
	return nil
}

func (r *AuthCodeRepository) Get(ctx context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	var code domain.AuthorizationCode
	err := r.codes.FindOne(ctx, bson.M{"_id": codeValue}).Decode(&code)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error retrieving authorization code")
		return nil, fmt.Errorf("failed to retrieve authorization code: %w", err)
	}
	return &code, nil
}

// Consume marks the code used and returns its prior state in one document
// operation. Only one of any number of concurrent redemptions gets the
// pre-image; the rest see ErrAlreadyUsed.
func (r *AuthCodeRepository) Consume(ctx context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var code domain.AuthorizationCode
	err := r.codes.FindOneAndUpdate(ctx,
		bson.M{"_id": codeValue, "used": false},
		bson.M{"$set": bson.M{"used": true}},
		opts).Decode(&code)
	if err == nil {
		return &code, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		log.Error().Err(err).Msg("Error consuming authorization code")
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	// No unused document matched. Look the code up to tell replay apart
	// from an unknown code.
	if _, getErr := r.Get(ctx, codeValue); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrAlreadyUsed
}

func (r *AuthCodeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.codes.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before.UTC()}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
