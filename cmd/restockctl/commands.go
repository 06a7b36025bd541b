package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/restock/internal/app"
	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/service/delivery"
)

func resolveUnitCmd(envFile *string) *cobra.Command {
	var in models.ResolveUnitMismatchInput

	cmd := &cobra.Command{
		Use:   "resolve-unit [item name]",
		Short: "Relabel a branch item's unit to the unit a supplier delivered",
		Long: `Relabels the inventory item to the delivered unit without converting
its stock. Retry the rejected delivery afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ItemName = args[0]
			return withApp(cmd.Context(), *envFile, func(a *app.App) error {
				res, err := a.Deliveries.ResolveUnitMismatch(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("%s: %w", delivery.UserMessage(err), err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.TenantID, "tenant", "", "Tenant id")
	cmd.Flags().StringVar(&in.LocationID, "location", "", "Branch id")
	cmd.Flags().StringVar(&in.NewUnit, "unit", "", "Delivered unit")
	cmd.Flags().Float64Var(&in.Quantity, "quantity", 0, "Delivered quantity, echoed in the retry hint")
	cmd.Flags().StringVar(&in.ActorID, "actor", "", "Operator performing the change")
	for _, f := range []string{"tenant", "location", "unit", "actor"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

func addItemCmd(envFile *string) *cobra.Command {
	var in models.AddMissingItemInput

	cmd := &cobra.Command{
		Use:   "add-item [item name]",
		Short: "Create a missing branch inventory item with zero stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ItemName = args[0]
			return withApp(cmd.Context(), *envFile, func(a *app.App) error {
				id, err := a.Deliveries.AddMissingInventoryItem(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("%s: %w", delivery.UserMessage(err), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s). Retry the delivery.\n", in.ItemName, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.TenantID, "tenant", "", "Tenant id")
	cmd.Flags().StringVar(&in.LocationID, "location", "", "Branch id")
	cmd.Flags().StringVar(&in.Unit, "unit", "", "Unit taken from the order line")
	cmd.Flags().Float64Var(&in.UnitPrice, "price", 0, "Unit price taken from the order line")
	for _, f := range []string{"tenant", "location", "unit"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

func drainCmd(envFile *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Re-drive pending side effects from the outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *envFile, func(a *app.App) error {
				n, err := a.Dispatcher.Drain(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d pending tasks\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum tasks to process")

	return cmd
}
