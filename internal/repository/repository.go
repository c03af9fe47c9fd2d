package repository

import (
	"context"

	"picmark/gallery/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrDuplicateKey  = RepositoryError("duplicate key")
	ErrDeleteFailed  = RepositoryError("delete failed")
	ErrInvalidRecord = RepositoryError("invalid record")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// ImageRepository persists image metadata. The stored object itself is handled by the storage layer.
type ImageRepository interface {
	Create(ctx context.Context, image *domain.Image) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Image, error)
	List(ctx context.Context, filter domain.ImageFilter) ([]domain.Image, int64, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
}

// SettingsRepository reads and writes the typed settings documents.
type SettingsRepository interface {
	GetUploadSettings(ctx context.Context) (domain.UploadSettings, error)
	SaveUploadSettings(ctx context.Context, s domain.UploadSettings) error
}
