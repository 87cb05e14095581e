package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
)

func newOrdersCmd(rt func() *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect orders and their buyer copies",
	}
	cmd.AddCommand(newResolveCopyCmd(rt))
	return cmd
}

func newListingsCmd(rt func() *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Repair listing provenance",
	}
	cmd.AddCommand(newReconcileCmd(rt))
	return cmd
}

type copyFlags struct {
	buyer string
	wait  bool
}

func (f *copyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.buyer, "buyer", "", "buyer id the order belongs to")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "poll until the copy exists or attempts run out")
	_ = cmd.MarkFlagRequired("buyer")
}

func (f *copyFlags) resolve(cmd *cobra.Command, rt *runtime, rawID string) (*ownership.Resolution, error) {
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}
	if f.wait {
		return rt.domain.Poller.Wait(cmd.Context(), orderID, f.buyer)
	}
	return rt.domain.Resolver.Resolve(cmd.Context(), orderID, f.buyer)
}

func newResolveCopyCmd(rt func() *runtime) *cobra.Command {
	var flags copyFlags
	cmd := &cobra.Command{
		Use:   "resolve-copy <order-id>",
		Short: "Find the buyer's copy of a purchased listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := flags.resolve(cmd, rt(), args[0])
			if err != nil {
				return err
			}
			out := map[string]any{"ready": res.Ready(), "path": res.Path}
			if res.Ready() {
				out["listing_id"] = res.Listing.ID
				out["score"] = res.Score
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newReconcileCmd(rt func() *runtime) *cobra.Command {
	var flags copyFlags
	cmd := &cobra.Command{
		Use:   "reconcile <order-id>",
		Short: "Append the order's snapshot moments missing from the buyer copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := rt()
			res, err := flags.resolve(cmd, r, args[0])
			if err != nil {
				return err
			}
			if !res.Ready() {
				return errors.New("buyer copy not found yet")
			}
			listing, appended, err := r.domain.Reconciler.Reconcile(cmd.Context(), res.Listing.ID, res.Order)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"listing_id": listing.ID,
				"appended":   appended,
				"moments":    len(listing.MomentHistory),
			})
		},
	}
	flags.bind(cmd)
	return cmd
}
