package profiles

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stadiumcard/stadiumcard-backend/internal/repo"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// AnonymousName is shown when an author has no usable profile name.
const AnonymousName = "Anonymous"

// Repository reads and writes cached profiles.
type Repository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a profile repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Upsert(ctx context.Context, profile *models.Profile) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "name", "updated_at"}),
	}).Create(profile).Error
}

// Directory resolves author names for memories.
type Directory struct {
	repo Repository
	logg *logger.Logger
}

// NewDirectory builds a name resolver over the profile cache.
func NewDirectory(repo Repository, logg *logger.Logger) (*Directory, error) {
	if repo == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Directory{repo: repo, logg: logg}, nil
}

// AuthorName returns the display name, then the name, then AnonymousName.
// Lookup failures degrade to AnonymousName; a memory is never blocked on it.
func (d *Directory) AuthorName(ctx context.Context, userID string) string {
	profile, err := d.repo.FindByUserID(ctx, userID)
	if err != nil {
		if !db.IsNotFound(err) {
			d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			}), "profiles.lookup_failed")
		}
		return AnonymousName
	}
	for _, candidate := range []*string{profile.DisplayName, profile.Name} {
		if candidate != nil {
			if name := strings.TrimSpace(*candidate); name != "" {
				return name
			}
		}
	}
	return AnonymousName
}
