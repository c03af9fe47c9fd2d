package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Image stores metadata about an uploaded picture. The bytes live in the object store
// under Key; this record is written only after the client finished the upload.
type Image struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	URL         string             `bson:"url" json:"url"`
	Key         string             `bson:"key" json:"key"` // storage key, unique
	Tags        []string           `bson:"tags" json:"tags"`
	OwnerID     primitive.ObjectID `bson:"owner" json:"owner"`
	IsPublic    bool               `bson:"isPublic" json:"isPublic"`
	Width       int                `bson:"width" json:"width"`
	Height      int                `bson:"height" json:"height"`
	FileSize    int64              `bson:"fileSize" json:"fileSize"`
	Format      string             `bson:"format" json:"format"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ImageFilter narrows a listing. Zero values mean "no restriction".
type ImageFilter struct {
	// VisibleTo restricts results to images owned by this user or public ones.
	VisibleTo *primitive.ObjectID
	OwnerID   *primitive.ObjectID
	Tags      []string
	Skip      int64
	Limit     int64
}
