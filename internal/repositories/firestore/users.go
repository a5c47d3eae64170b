package firestore

import (
	"context"
	"errors"

	platformfs "github.com/clearbay/orders/internal/platform/firestore"
	"github.com/clearbay/orders/internal/repositories"
)

const usersCollection = "users"

type userDoc struct {
	Email  string `firestore:"email"`
	Active bool   `firestore:"active"`
}

// UserDirectory resolves user records from the users collection.
type UserDirectory struct {
	users *platformfs.BaseRepository[userDoc]
}

// NewUserDirectory binds the directory to the provider's client.
func NewUserDirectory(provider *platformfs.Provider) (*UserDirectory, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &UserDirectory{
		users: platformfs.NewBaseRepository[userDoc](provider, usersCollection),
	}, nil
}

func (d *UserDirectory) FindUser(ctx context.Context, userID string) (repositories.UserRecord, error) {
	doc, err := d.users.Get(ctx, userID)
	if err != nil {
		return repositories.UserRecord{}, err
	}
	return repositories.UserRecord{
		ID:     doc.ID,
		Email:  doc.Data.Email,
		Active: doc.Data.Active,
	}, nil
}
