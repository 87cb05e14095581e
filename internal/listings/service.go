package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns a listing's sale eligibility. It knows nothing about orders;
// the reservation flow enforces exclusivity.
type Service interface {
	Get(ctx context.Context, id uuid.UUID, viewerID string) (*models.Listing, error)
	SetStatus(ctx context.Context, id uuid.UUID, callerID string, status enums.ListingStatus) (*models.Listing, error)
	SoftDelete(ctx context.Context, id uuid.UUID, callerID string) error
	Restore(ctx context.Context, id uuid.UUID, callerID string) (*models.Listing, error)
	ToggleMomentHidden(ctx context.Context, id uuid.UUID, callerID string, ref MomentRef) (*dbtypes.Moment, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	history *HistoryWriter
	logg    *logger.Logger
}

// NewService builds the listing status service.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, history *HistoryWriter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if history == nil {
		return nil, fmt.Errorf("history writer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, outbox: emitter, history: history, logg: logg}, nil
}

// Get returns the listing. Soft-deleted listings are visible to their owner only.
func (s *service) Get(ctx context.Context, id uuid.UUID, viewerID string) (*models.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ItemNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.IsDeleted() && listing.OwnerID != viewerID {
		return nil, ItemNotFound()
	}
	return listing, nil
}

func (s *service) loadOwned(ctx context.Context, repo Repository, id uuid.UUID, callerID string) (*models.Listing, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	listing, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ItemNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.OwnerID != callerID {
		if listing.IsDeleted() {
			return nil, ItemNotFound()
		}
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can change this listing")
	}
	return listing, nil
}

// SetStatus moves the listing between draft, display and active. Completed
// is written by the payment pipeline only, and a seller's sold listing stays
// completed.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, callerID string, status enums.ListingStatus) (*models.Listing, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid listing status %q", status))
	}
	if status == enums.ListingStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "completed is set when a sale settles")
	}

	var updated *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := s.loadOwned(ctx, repo, id, callerID)
		if err != nil {
			return err
		}
		if listing.IsDeleted() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "restore the listing before changing its status")
		}
		if listing.Status == enums.ListingStatusCompleted && listing.OriginOrderID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sold listings cannot be relisted")
		}
		from := listing.Status
		if from == status {
			updated = listing
			return nil
		}
		if err := repo.UpdateStatus(ctx, id, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing status")
		}
		listing.Status = status
		updated = listing
		return s.emitStatus(ctx, tx, listing, from, false)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"listing_id": id.String(),
		"status":     updated.Status,
	}), "listing.status_set")
	return updated, nil
}

func (s *service) SoftDelete(ctx context.Context, id uuid.UUID, callerID string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := s.loadOwned(ctx, repo, id, callerID)
		if err != nil {
			return err
		}
		if listing.IsDeleted() {
			return nil
		}
		now := time.Now().UTC()
		if err := repo.SetDeletedAt(ctx, id, &now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete listing")
		}
		listing.DeletedAt = &now
		return s.emitStatus(ctx, tx, listing, listing.Status, true)
	})
}

// Restore clears the soft-delete marker.
func (s *service) Restore(ctx context.Context, id uuid.UUID, callerID string) (*models.Listing, error) {
	var restored *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := s.loadOwned(ctx, repo, id, callerID)
		if err != nil {
			return err
		}
		restored = listing
		if !listing.IsDeleted() {
			return nil
		}
		if err := repo.SetDeletedAt(ctx, id, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore listing")
		}
		listing.DeletedAt = nil
		return s.emitStatus(ctx, tx, listing, listing.Status, false)
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// ToggleMomentHidden flips a moment's hidden flag. Owner only.
func (s *service) ToggleMomentHidden(ctx context.Context, id uuid.UUID, callerID string, ref MomentRef) (*dbtypes.Moment, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	var toggled dbtypes.Moment
	_, _, err := s.history.Mutate(ctx, id, func(listing *models.Listing) (bool, error) {
		if listing.OwnerID != callerID {
			if listing.IsDeleted() {
				return false, ItemNotFound()
			}
			return false, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can hide moments")
		}
		idx, err := ref.Locate(listing.MomentHistory)
		if err != nil {
			return false, err
		}
		listing.MomentHistory[idx].IsHidden = !listing.MomentHistory[idx].IsHidden
		toggled = listing.MomentHistory[idx].Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &toggled, nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, listing *models.Listing, from enums.ListingStatus, deleted bool) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventListingStatusSet,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Actor:         &outbox.ActorRef{UserID: listing.OwnerID, Role: "owner"},
		Data: payloads.ListingStatusChangedEvent{
			ListingID: listing.ID,
			OwnerID:   listing.OwnerID,
			From:      from,
			To:        listing.Status,
			Deleted:   deleted,
		},
	})
}
