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

	"github.com/nimbusid/oauthd/domain"
)

// CredentialRepository stores registered API credentials.
type CredentialRepository struct {
	coll *mongo.Collection
}

func NewCredentialRepository(db *mongo.Database) *CredentialRepository {
	return &CredentialRepository{coll: db.Collection(CredentialsCollection)}
}

var _ domain.CredentialRepository = (*CredentialRepository)(nil)

func (r *CredentialRepository) Create(ctx context.Context, cred *domain.ClientCredential) error {
	if cred.ClientID == "" {
		return errors.New("client_id cannot be empty")
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	cred.CreatedAt = time.Now().UTC()
	_, err := r.coll.InsertOne(ctx, cred)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("credential %s already exists: %w", cred.ClientID, err)
		}
		log.Error().Err(err).Str("client_id", cred.ClientID).Msg("Error saving credential")
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*domain.ClientCredential, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *CredentialRepository) GetByClientID(ctx context.Context, clientID string) (*domain.ClientCredential, error) {
	return r.findOne(ctx, bson.M{"client_id": clientID})
}

func (r *CredentialRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.ClientCredential, error) {
	return r.findOne(ctx, bson.M{"api_key": apiKey})
}

func (r *CredentialRepository) findOne(ctx context.Context, filter bson.M) (*domain.ClientCredential, error) {
	var cred domain.ClientCredential
	err := r.coll.FindOne(ctx, filter).Decode(&cred)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error retrieving credential")
		return nil, fmt.Errorf("failed to retrieve credential: %w", err)
	}
	return &cred, nil
}

func (r *CredentialRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_used_at": at.UTC()}})
	if err != nil {
		return fmt.Errorf("failed to touch credential %s: %w", id, err)
	}
	return nil
}
