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

// SessionRepository stores authorization sessions plus the per-credential
// login number sequences.
type SessionRepository struct {
	sessions *mongo.Collection
	counters *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{
		sessions: db.Collection(SessionsCollection),
		counters: db.Collection(CountersCollection),
	}
}

var _ domain.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session.SessionID == "" {
		return errors.New("session id cannot be empty")
	}
	_, err := r.sessions.InsertOne(ctx, session)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.SessionID).Msg("Error saving session")
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := r.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error retrieving session")
		return nil, fmt.Errorf("failed to retrieve session: %w", err)
	}
	return &session, nil
}

// MarkAuthorized flips a pending session to authorized. The status filter is
// part of the update, so only the first completion attempt wins.
func (r *SessionRepository) MarkAuthorized(ctx context.Context, sessionID, userID string, at time.Time) error {
	at = at.UTC()
	result, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID, "status": domain.SessionStatusPending},
		bson.M{"$set": bson.M{
			"status":        domain.SessionStatusAuthorized,
			"user_id":       userID,
			"authorized_at": at,
		}})
	if err != nil {
		return fmt.Errorf("failed to mark session authorized: %w", err)
	}
	if result.MatchedCount == 0 {
		// Either unknown or no longer pending; a lookup tells them apart.
		if _, getErr := r.GetBySessionID(ctx, sessionID); getErr != nil {
			return getErr
		}
		return domain.ErrNotPending
	}
	return nil
}

func (r *SessionRepository) UpdateTokenSnapshot(ctx context.Context, sessionID, accessToken, refreshToken string, expiresAt time.Time) error {
	_, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt.UTC(),
		}})
	if err != nil {
		return fmt.Errorf("failed to update session token snapshot: %w", err)
	}
	return nil
}

// NextLoginNumber atomically increments and returns the credential's login
// sequence. The first call for a credential yields 1.
func (r *SessionRepository) NextLoginNumber(ctx context.Context, credentialID string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "login:" + credentialID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to advance login counter for %s: %w", credentialID, err)
	}
	return counter.Seq, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.sessions.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before.UTC()}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
