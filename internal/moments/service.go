package moments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput describes a live moment from the feed or an operator.
type CreateInput struct {
	ID            string    `json:"moment_id" validate:"required,max=128"`
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=2000"`
	SubjectName   string    `json:"subject_name" validate:"required,max=200"`
	Intensity     int       `json:"intensity" validate:"min=0,max=5"`
	ResultSummary string    `json:"result_summary" validate:"max=500"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FinalizeResult reports how far a finalized result propagated.
type FinalizeResult struct {
	Moment          *models.LiveMoment
	ListingsUpdated int
}

// Service manages live moments.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.LiveMoment, bool, error)
	Finalize(ctx context.Context, id, resultSummary string) (*FinalizeResult, error)
}

type service struct {
	repo     Repository
	listings listings.Repository
	history  *listings.HistoryWriter
	tx       txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
	clock    func() time.Time
}

// NewService builds the live moment service.
func NewService(repo Repository, listingRepo listings.Repository, history *listings.HistoryWriter, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("moments repository required")
	}
	if listingRepo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if history == nil {
		return nil, fmt.Errorf("history writer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     repo,
		listings: listingRepo,
		history:  history,
		tx:       tx,
		outbox:   emitter,
		logg:     logg,
		clock:    time.Now,
	}, nil
}

// Create records a live moment. It is idempotent on id and reports whether
// a new row was written.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.LiveMoment, bool, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Title = strings.TrimSpace(input.Title)
	input.SubjectName = strings.TrimSpace(input.SubjectName)
	if input.ID == "" || input.Title == "" || input.SubjectName == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "moment id, title and subject are required")
	}

	occurred := input.OccurredAt.UTC()
	if input.OccurredAt.IsZero() {
		occurred = s.clock().UTC()
	}
	moment := &models.LiveMoment{
		ID:            input.ID,
		Title:         input.Title,
		Description:   input.Description,
		SubjectName:   input.SubjectName,
		Intensity:     input.Intensity,
		ResultSummary: input.ResultSummary,
		Status:        enums.MomentStatusLive,
		OccurredAt:    occurred,
	}
	created, err := s.repo.Insert(ctx, moment)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store live moment")
	}
	if !created {
		existing, err := s.repo.FindByID(ctx, input.ID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load live moment")
		}
		return existing, false, nil
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"moment_id": moment.ID,
		"subject":   moment.SubjectName,
	}), "moments.created")
	return moment, true, nil
}

// Finalize settles a live moment and pushes its result into every listing
// history that already recorded it. Re-running it repairs listings a
// previous attempt failed to update.
func (s *service) Finalize(ctx context.Context, id, resultSummary string) (*FinalizeResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "moment id is required")
	}
	resultSummary = strings.TrimSpace(resultSummary)

	var moment *models.LiveMoment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkFinalized(ctx, id, resultSummary, s.clock()); err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.WithReason(pkgerrors.CodeNotFound, listings.ReasonMoment, "moment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize live moment")
		}
		found, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load live moment")
		}
		moment = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	affected, err := s.listings.FindContainingMoment(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find listings with moment")
	}

	updated := 0
	var propagateErr error
	for _, listing := range affected {
		_, changed, err := s.history.Mutate(ctx, listing.ID, func(l *models.Listing) (bool, error) {
			idx := l.MomentHistory.IndexOf(id)
			if idx < 0 {
				return false, nil
			}
			current := l.MomentHistory[idx]
			if current.Status == enums.MomentStatusFinalized && current.ResultSummary == resultSummary {
				return false, nil
			}
			l.MomentHistory[idx].Status = enums.MomentStatusFinalized
			l.MomentHistory[idx].ResultSummary = resultSummary
			return true, nil
		})
		if err != nil {
			propagateErr = multierr.Append(propagateErr, fmt.Errorf("listing %s: %w", listing.ID, err))
			continue
		}
		if changed {
			updated++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"moment_id":        id,
		"listings_updated": updated,
		"listings_matched": len(affected),
	})
	if propagateErr != nil {
		s.logg.Error(logCtx, "moments.finalize_partial", propagateErr)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, propagateErr, "finalized moment did not reach every listing")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLiveMomentFinalize,
			AggregateType: enums.AggregateLiveMoment,
			AggregateID:   outbox.LiveMomentAggregateID(id),
			Data: payloads.LiveMomentFinalizedEvent{
				MomentID:        id,
				ResultSummary:   resultSummary,
				ListingsUpdated: updated,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue finalize event")
	}

	s.logg.Info(logCtx, "moments.finalized")
	return &FinalizeResult{Moment: moment, ListingsUpdated: updated}, nil
}
