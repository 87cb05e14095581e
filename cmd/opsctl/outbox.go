package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
)

type parkedEvent struct {
	EventID      uuid.UUID `json:"event_id"`
	EventType    string    `json:"event_type"`
	AggregateID  uuid.UUID `json:"aggregate_id"`
	Reason       string    `json:"reason"`
	Error        string    `json:"error,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	FailedAt     string    `json:"failed_at"`
}

func newOutboxCmd(rt func() *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay events the publisher parked",
	}

	var (
		limit     int
		eventType string
	)
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "List parked events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter enums.OutboxEventType
			if eventType != "" {
				parsed, err := enums.ParseOutboxEventType(eventType)
				if err != nil {
					return err
				}
				filter = parsed
			}
			entries, err := rt().domain.DLQRepo.List(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			out := make([]parkedEvent, 0, len(entries))
			for _, e := range entries {
				out = append(out, toParked(e))
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	dlq.Flags().IntVar(&limit, "limit", 50, "maximum entries to print")
	dlq.Flags().StringVar(&eventType, "type", "", "only entries of this event type")

	show := &cobra.Command{
		Use:   "show <event-id>",
		Short: "Print the latest DLQ entry for an event, payload included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("event id: %w", err)
			}
			entry, err := rt().domain.DLQRepo.FindByEventID(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("%s: %w", eventID, outbox.ErrNotParked)
			}
			return printJSON(cmd.OutOrStdout(), struct {
				parkedEvent
				Payload json.RawMessage `json:"payload"`
			}{toParked(*entry), entry.Payload})
		},
	}

	replay := &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Put a parked event back in the publish queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("event id: %w", err)
			}
			r := rt()
			var row *models.OutboxEvent
			err = r.params.DB.WithTx(cmd.Context(), func(tx *gorm.DB) error {
				row, err = r.domain.DLQRepo.Replay(cmd.Context(), tx, eventID)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s (%s)\n", row.ID, row.EventType)
			return nil
		},
	}

	cmd.AddCommand(dlq, show, replay)
	return cmd
}

func toParked(e models.OutboxDLQ) parkedEvent {
	p := parkedEvent{
		EventID:      e.EventID,
		EventType:    string(e.EventType),
		AggregateID:  e.AggregateID,
		Reason:       string(e.ErrorReason),
		AttemptCount: e.AttemptCount,
		FailedAt:     e.FailedAt.UTC().Format(time.RFC3339),
	}
	if e.ErrorMessage != nil {
		p.Error = *e.ErrorMessage
	}
	return p
}
