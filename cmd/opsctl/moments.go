package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stadiumcard/stadiumcard-backend/internal/moments"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/kafka"
)

func newMomentsCmd(rt func() *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moments",
		Short: "Create, finalize and replay live moments",
	}
	cmd.AddCommand(newMomentCreateCmd(rt), newMomentFinalizeCmd(rt), newMomentPublishCmd())
	return cmd
}

func bindMomentFlags(cmd *cobra.Command, in *moments.CreateInput, occurredAt *string) {
	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "feed-assigned moment id")
	f.StringVar(&in.Title, "title", "", "moment title")
	f.StringVar(&in.Description, "description", "", "longer description")
	f.StringVar(&in.SubjectName, "subject", "", "subject the moment is about")
	f.IntVar(&in.Intensity, "intensity", 0, "intensity from 0 to 5")
	f.StringVar(occurredAt, "occurred-at", "", "RFC3339 time the moment happened (default now)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("subject")
}

func parseOccurredAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--occurred-at: %w", err)
	}
	return t.UTC(), nil
}

func newMomentCreateCmd(rt func() *runtime) *cobra.Command {
	var (
		in         moments.CreateInput
		occurredAt string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a live moment, returning the stored one when the id exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.OccurredAt, err = parseOccurredAt(occurredAt); err != nil {
				return err
			}
			moment, created, err := rt().domain.Moments.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"created": created, "moment": moment})
		},
	}
	bindMomentFlags(cmd, &in, &occurredAt)
	return cmd
}

func newMomentFinalizeCmd(rt func() *runtime) *cobra.Command {
	var result string
	cmd := &cobra.Command{
		Use:   "finalize <moment-id>",
		Short: "Settle a moment and push its result into listing histories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rt().domain.Moments.Finalize(cmd.Context(), args[0], result)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"moment":           res.Moment,
				"listings_updated": res.ListingsUpdated,
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "result summary")
	return cmd
}

// newMomentPublishCmd replays feed messages onto the live moment topic. The
// file holds one JSON message or an array of them.
func newMomentPublishCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:         "publish",
		Short:       "Write feed messages to the live moment topic",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			msgs, err := decodeFeed(raw)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			producer, err := kafka.NewProducer(cfg.Kafka)
			if err != nil {
				return err
			}
			defer producer.Close()

			for _, msg := range msgs {
				if err := producer.PublishJSON(cmd.Context(), msg.ID, msg); err != nil {
					return fmt.Errorf("publish %s: %w", msg.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d message(s) to %s\n", len(msgs), cfg.Kafka.LiveMomentsTopic)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file of feed messages")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func decodeFeed(raw []byte) ([]moments.FeedMessage, error) {
	var many []moments.FeedMessage
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one moments.FeedMessage
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode feed messages: %w", err)
	}
	return []moments.FeedMessage{one}, nil
}
