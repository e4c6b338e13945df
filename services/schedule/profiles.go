package schedule

import (
	"context"

	"coachmarket-fulfillment/pkg/repository"

	"gorm.io/gorm"
)

// ProfileStore reads student profiles. Returns (nil, nil) when the profile
// does not exist.
type ProfileStore interface {
	GetProfile(ctx context.Context, studentID string) (*StudentProfile, error)
}

type profileStore struct {
	profiles repository.Repository[StudentProfile]
}

func NewProfileStore(db *gorm.DB) ProfileStore {
	return &profileStore{profiles: repository.ProvideStore[StudentProfile](db)}
}

func (s *profileStore) GetProfile(ctx context.Context, studentID string) (*StudentProfile, error) {
	return s.profiles.FindOne(ctx, &StudentProfile{ID: studentID})
}
