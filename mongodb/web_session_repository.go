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
	"github.com/nimbusid/oauthd/websession"
)

// WebSessionRepository stores dashboard login sessions.
type WebSessionRepository struct {
	coll *mongo.Collection
}

func NewWebSessionRepository(db *mongo.Database) *WebSessionRepository {
	return &WebSessionRepository{coll: db.Collection(WebSessionsCollection)}
}

var _ websession.Repository = (*WebSessionRepository)(nil)

func (r *WebSessionRepository) Create(ctx context.Context, session *websession.Session) error {
	if session.ID == "" {
		return errors.New("web session id cannot be empty")
	}
	_, err := r.coll.InsertOne(ctx, session)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Error saving web session")
		return fmt.Errorf("failed to save web session: %w", err)
	}
	return nil
}

func (r *WebSessionRepository) GetBySessionToken(ctx context.Context, token string) (*websession.Session, error) {
	var session websession.Session
	err := r.coll.FindOne(ctx, bson.M{"session_token": token}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error retrieving web session")
		return nil, fmt.Errorf("failed to retrieve web session: %w", err)
	}
	return &session, nil
}

// ConsumeRefresh burns the refresh token and links the successor, same
// single-winner shape as the OAuth refresh rotation.
func (r *WebSessionRepository) ConsumeRefresh(ctx context.Context, refreshToken, replacedBy string) (*websession.Session, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var session websession.Session
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"refresh_token": refreshToken, "used": false},
		bson.M{"$set": bson.M{"used": true, "replaced_by": replacedBy}},
		opts).Decode(&session)
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		log.Error().Err(err).Msg("Error consuming web session refresh token")
		return nil, fmt.Errorf("failed to consume web session refresh token: %w", err)
	}
	var existing websession.Session
	getErr := r.coll.FindOne(ctx, bson.M{"refresh_token": refreshToken}).Decode(&existing)
	if getErr != nil {
		if errors.Is(getErr, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve web session: %w", getErr)
	}
	return nil, domain.ErrAlreadyUsed
}

func (r *WebSessionRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_revoked": true}})
	if err != nil {
		return fmt.Errorf("failed to revoke web session: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
