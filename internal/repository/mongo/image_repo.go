package mongo

import (
	"context"
	"errors"
	"time"

	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const imageCollectionName = "images"

// mongoImageRepository implements repository.ImageRepository
type mongoImageRepository struct {
	collection *mongo.Collection
}

// NewMongoImageRepository creates a new Image repository backed by MongoDB.
func NewMongoImageRepository(db *mongo.Database) repository.ImageRepository {
	return &mongoImageRepository{
		collection: db.Collection(imageCollectionName),
	}
}

// Create inserts image metadata after the client finished its upload.
func (r *mongoImageRepository) Create(ctx context.Context, image *domain.Image) (primitive.ObjectID, error) {
	if image.Key == "" || image.OwnerID == primitive.NilObjectID {
		return primitive.NilObjectID, repository.ErrInvalidRecord
	}

	image.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	image.CreatedAt = now
	image.UpdatedAt = now
	if image.Tags == nil {
		image.Tags = []string{}
	}

	result, err := r.collection.InsertOne(ctx, image)
	if err != nil {
		// key carries a unique index; a second finalize for the same upload lands here
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves image metadata by its ID.
func (r *mongoImageRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Image, error) {
	var image domain.Image
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&image)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &image, nil
}

// List returns one page of images, newest first, and the total match count.
func (r *mongoImageRepository) List(ctx context.Context, f domain.ImageFilter) ([]domain.Image, int64, error) {
	filter := imageFilter(f)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	images := []domain.Image{}
	if err = cursor.All(ctx, &images); err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// DeleteByID removes only the metadata record.
func (r *mongoImageRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func imageFilter(f domain.ImageFilter) bson.M {
	filter := bson.M{}
	if f.VisibleTo != nil {
		filter["$or"] = bson.A{
			bson.M{"owner": *f.VisibleTo},
			bson.M{"isPublic": true},
		}
	}
	if f.OwnerID != nil {
		filter["owner"] = *f.OwnerID
	}
	if len(f.Tags) > 0 {
		filter["tags"] = bson.M{"$all": f.Tags}
	}
	return filter
}

// EnsureImageIndexes creates necessary indexes for the images collection.
func EnsureImageIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "tags", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
