package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nimbusid/oauthd/domain"
)

// TokenRepository stores issued access and refresh tokens in separate
// collections, keyed by token value.
type TokenRepository struct {
	access  *mongo.Collection
	refresh *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{
		access:  db.Collection(AccessTokenCollection),
		refresh: db.Collection(RefreshTokCollection),
	}
}

var _ domain.TokenRepository = (*TokenRepository)(nil)

func (r *TokenRepository) StoreAccessToken(ctx context.Context, token *domain.AccessToken) error {
	if token.Token == "" {
		return errors.New("access token value cannot be empty")
	}
	_, err := r.access.InsertOne(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("Error storing access token")
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

func (r *TokenRepository) StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	if token.Token == "" {
		return errors.New("refresh token value cannot be empty")
	}
	_, err := r.refresh.InsertOne(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("Error storing refresh token")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepository) GetAccessToken(ctx context.Context, tokenValue string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := r.access.FindOne(ctx, bson.M{"_id": tokenValue}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error retrieving access token")
		return nil, fmt.Errorf("failed to retrieve access token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepository) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.refresh.FindOne(ctx, bson.M{"_id": tokenValue}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error retrieving refresh token")
		return nil, fmt.Errorf("failed to retrieve refresh token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepository) RevokeAccessToken(ctx context.Context, tokenValue string) error {
	result, err := r.access.UpdateOne(ctx,
		bson.M{"_id": tokenValue},
		bson.M{"$set": bson.M{"is_revoked": true}})
	if err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeRefreshToken atomically burns a refresh token and links its
// successor. The credential filter is part of the condition, so a token can
// never be consumed by a different client than it was issued to, not even
// transiently.
func (r *TokenRepository) ConsumeRefreshToken(ctx context.Context, tokenValue, credentialID, replacedBy string) (*domain.RefreshToken, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var token domain.RefreshToken
	err := r.refresh.FindOneAndUpdate(ctx,
		bson.M{"_id": tokenValue, "credential_id": credentialID, "used": false},
		bson.M{"$set": bson.M{"used": true, "replaced_by": replacedBy}},
		opts).Decode(&token)
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		log.Error().Err(err).Msg("Error consuming refresh token")
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	// Distinguish replay from unknown token; a token held by another
	// credential reads as unknown on purpose.
	existing, getErr := r.GetRefreshToken(ctx, tokenValue)
	if getErr != nil {
		return nil, getErr
	}
	if existing.CredentialID != credentialID {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrAlreadyUsed
}
