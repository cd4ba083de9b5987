package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nimbusid/oauthd/domain"
)

// SecurityLogRepository appends audit records. Append only; nothing in the
// server reads these back.
type SecurityLogRepository struct {
	coll *mongo.Collection
}

func NewSecurityLogRepository(db *mongo.Database) *SecurityLogRepository {
	return &SecurityLogRepository{coll: db.Collection(SecurityLogCollection)}
}

var _ domain.SecurityLogRepository = (*SecurityLogRepository)(nil)

func (r *SecurityLogRepository) Append(ctx context.Context, entry *domain.SecurityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, entry)
	if err != nil {
		log.Error().Err(err).Str("action", entry.Action).Msg("Error appending security log")
		return fmt.Errorf("failed to append security log: %w", err)
	}
	return nil
}

// UsageStatRepository maintains per-credential daily counters, one document
// per credential, operation and day.
type UsageStatRepository struct {
	coll *mongo.Collection
}

func NewUsageStatRepository(db *mongo.Database) *UsageStatRepository {
	return &UsageStatRepository{coll: db.Collection(UsageStatsCollection)}
}

var _ domain.UsageStatRepository = (*UsageStatRepository)(nil)

func (r *UsageStatRepository) Record(ctx context.Context, credentialID, operation string, success bool, at time.Time) error {
	at = at.UTC()
	day := at.Format("2006-01-02")
	field := "failure"
	if success {
		field = "success"
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"credential_id": credentialID, "operation": operation, "day": day},
		bson.M{
			"$inc": bson.M{field: 1},
			"$set": bson.M{"updated_at": at},
			"$setOnInsert": bson.M{
				"_id": fmt.Sprintf("%s:%s:%s", credentialID, operation, day),
			},
		},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("credential_id", credentialID).Msg("Error recording usage stat")
		return fmt.Errorf("failed to record usage stat: %w", err)
	}
	return nil
}
