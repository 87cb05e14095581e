// Package memories manages the short annotations nested under history moments.
package memories

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/internal/history"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/visibility"
)

type orderReader interface {
	FindLatestForBuyer(ctx context.Context, listingID uuid.UUID, buyerID string) (*models.Order, error)
}

type liveLookup interface {
	FindByID(ctx context.Context, id string) (*models.LiveMoment, error)
}

type authorNames interface {
	AuthorName(ctx context.Context, userID string) string
}

// Service applies memory mutations through the optimistic history writer.
type Service interface {
	Create(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, text string) (*dbtypes.Memory, error)
	Edit(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, memoryID, text string) (*dbtypes.Memory, error)
	Delete(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, memoryID string) error
	ToggleHidden(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, memoryID string) (*dbtypes.Memory, error)
}

type service struct {
	writer  *listings.HistoryWriter
	orders  orderReader
	live    liveLookup
	authors authorNames
	maxLen  int
	clock   func() time.Time
	logg    *logger.Logger
}

// NewService builds the memory service. maxLen caps memory text in characters.
func NewService(writer *listings.HistoryWriter, orders orderReader, live liveLookup, authors authorNames, maxLen int, logg *logger.Logger) (Service, error) {
	if writer == nil {
		return nil, fmt.Errorf("history writer required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if live == nil {
		return nil, fmt.Errorf("live moment lookup required")
	}
	if authors == nil {
		return nil, fmt.Errorf("author directory required")
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("memory max length must be positive")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{writer: writer, orders: orders, live: live, authors: authors, maxLen: maxLen, clock: time.Now, logg: logg}, nil
}

// Create attaches a memory written by the listing owner or by a buyer whose
// order on the listing has not been cancelled. A moment frozen on that order
// but missing from the history is recorded first.
func (s *service) Create(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, text string) (*dbtypes.Memory, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	text, err := s.validText(text)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindLatestForBuyer(ctx, listingID, callerID)
	if err != nil {
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		order = nil
	}

	memory := dbtypes.Memory{
		ID:         uuid.NewString(),
		AuthorID:   callerID,
		AuthorName: s.authors.AuthorName(ctx, callerID),
		Text:       text,
		CreatedAt:  s.clock().UTC(),
	}
	_, _, err = s.writer.Mutate(ctx, listingID, func(l *models.Listing) (bool, error) {
		isOwner := l.OwnerID == callerID
		if l.IsDeleted() && !isOwner {
			return false, listings.ItemNotFound()
		}
		if !isOwner && order == nil {
			return false, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or a buyer of this item can add memories")
		}
		idx, err := s.locateForCreate(ctx, l, ref, order)
		if err != nil {
			return false, err
		}
		l.MomentHistory[idx].Memories = append(l.MomentHistory[idx].Memories, memory)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"listing_id": listingID.String(),
		"memory_id":  memory.ID,
	}), "memories.created")
	return &memory, nil
}

// locateForCreate resolves the target moment by id, then by the caller's
// order snapshot, and only then by index. A moment the order froze but the
// history lacks is recorded first so the memory cannot land on a neighbour.
// A moment that exists only as a live event is virtual and cannot take
// memories yet.
func (s *service) locateForCreate(ctx context.Context, l *models.Listing, ref listings.MomentRef, order *models.Order) (int, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" || l.MomentHistory.IndexOf(id) >= 0 {
		return ref.Locate(l.MomentHistory)
	}
	if order != nil {
		if frozen, ok := order.MomentSnapshot.Find(id); ok {
			merged, _ := history.Merge(l.MomentHistory, dbtypes.NewMomentSnapshot([]dbtypes.Moment{frozen}), order.ID)
			l.MomentHistory = merged
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"listing_id": l.ID.String(),
				"moment_id":  id,
			}), "memories.moment_stamped")
			return len(merged) - 1, nil
		}
	}
	if _, err := s.live.FindByID(ctx, id); err == nil {
		return -1, pkgerrors.New(pkgerrors.CodeValidation, "this moment is not recorded on the item yet")
	}
	return ref.Locate(l.MomentHistory)
}

// Edit rewrites the text of the caller's own memory and refreshes the
// stored author name.
func (s *service) Edit(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, memoryID, text string) (*dbtypes.Memory, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	text, err := s.validText(text)
	if err != nil {
		return nil, err
	}
	name := s.authors.AuthorName(ctx, callerID)
	var edited dbtypes.Memory
	_, _, err = s.writer.Mutate(ctx, listingID, func(l *models.Listing) (bool, error) {
		mi, ki, err := locate(l, callerID, ref, memoryID)
		if err != nil {
			return false, err
		}
		mem := &l.MomentHistory[mi].Memories[ki]
		if !visibility.CanEditMemory(visibility.NewViewer(callerID, l.OwnerID == callerID, nil), *mem) {
			return false, pkgerrors.New(pkgerrors.CodeForbidden, "only the author can edit this memory")
		}
		now := s.clock().UTC()
		mem.Text = text
		mem.AuthorName = name
		mem.UpdatedAt = &now
		edited = *mem
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &edited, nil
}

// Delete removes the caller's own memory. Owners can hide other people's
// memories but never delete them.
func (s *service) Delete(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, memoryID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	_, _, err := s.writer.Mutate(ctx, listingID, func(l *models.Listing) (bool, error) {
		mi, ki, err := locate(l, callerID, ref, memoryID)
		if err != nil {
			return false, err
		}
		mems := l.MomentHistory[mi].Memories
		if !visibility.CanEditMemory(visibility.NewViewer(callerID, l.OwnerID == callerID, nil), mems[ki]) {
			return false, pkgerrors.New(pkgerrors.CodeForbidden, "only the author can delete this memory")
		}
		l.MomentHistory[mi].Memories = append(mems[:ki], mems[ki+1:]...)
		return true, nil
	})
	return err
}

// ToggleHidden flips the hidden flag. Author or owner, in either direction.
func (s *service) ToggleHidden(ctx context.Context, listingID uuid.UUID, callerID string, ref listings.MomentRef, memoryID string) (*dbtypes.Memory, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	var toggled dbtypes.Memory
	_, _, err := s.writer.Mutate(ctx, listingID, func(l *models.Listing) (bool, error) {
		mi, ki, err := locate(l, callerID, ref, memoryID)
		if err != nil {
			return false, err
		}
		mem := &l.MomentHistory[mi].Memories[ki]
		if !visibility.CanToggleMemory(visibility.NewViewer(callerID, l.OwnerID == callerID, nil), *mem) {
			return false, pkgerrors.New(pkgerrors.CodeForbidden, "only the author or the owner can hide this memory")
		}
		mem.IsHidden = !mem.IsHidden
		toggled = *mem
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &toggled, nil
}

func locate(l *models.Listing, callerID string, ref listings.MomentRef, memoryID string) (int, int, error) {
	if l.IsDeleted() && l.OwnerID != callerID {
		return -1, -1, listings.ItemNotFound()
	}
	mi, err := ref.Locate(l.MomentHistory)
	if err != nil {
		return -1, -1, err
	}
	ki := l.MomentHistory[mi].MemoryIndex(strings.TrimSpace(memoryID))
	if memoryID == "" || ki < 0 {
		return -1, -1, pkgerrors.WithReason(pkgerrors.CodeNotFound, listings.ReasonMemory, "memory not found")
	}
	return mi, ki, nil
}

func (s *service) validText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "memory text is required")
	}
	if n := utf8.RuneCountInString(text); n > s.maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("memory text is %d characters, the limit is %d", n, s.maxLen))
	}
	return text, nil
}

func requireCaller(callerID string) error {
	if strings.TrimSpace(callerID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}
