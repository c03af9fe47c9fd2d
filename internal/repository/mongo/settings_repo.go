package mongo

import (
	"context"
	"errors"
	"time"

	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	settingsCollectionName = "settings"
	settingsTypeSystem     = "system"
)

// settingsDocument keeps one document per settings type.
type settingsDocument struct {
	Type      string                `bson:"type"`
	Settings  domain.UploadSettings `bson:"settings"`
	UpdatedAt time.Time             `bson:"updatedAt"`
}

type mongoSettingsRepository struct {
	collection *mongo.Collection
}

func NewMongoSettingsRepository(db *mongo.Database) repository.SettingsRepository {
	return &mongoSettingsRepository{
		collection: db.Collection(settingsCollectionName),
	}
}

// GetUploadSettings returns zero settings when none were saved yet; callers apply defaults.
func (r *mongoSettingsRepository) GetUploadSettings(ctx context.Context) (domain.UploadSettings, error) {
	var doc settingsDocument
	err := r.collection.FindOne(ctx, bson.M{"type": settingsTypeSystem}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UploadSettings{}, nil
		}
		return domain.UploadSettings{}, err
	}
	return doc.Settings, nil
}

func (r *mongoSettingsRepository) SaveUploadSettings(ctx context.Context, s domain.UploadSettings) error {
	update := bson.M{
		"$set": bson.M{
			"settings":  s,
			"updatedAt": time.Now().UTC(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"type": settingsTypeSystem}, update, options.Update().SetUpsert(true))
	return err
}

// EnsureSettingsIndexes keeps a single document per settings type.
func EnsureSettingsIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "type", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
