package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
)

func newChangeOwnerCmd(flags *rootOptions) *cobra.Command {
	var dto assignment.BatchChangeOwnerDTO
	cmd := &cobra.Command{
		Use:   "change-owner",
		Short: "Hand entities over to a new owner from the effective date on",
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs, ok := dto.Ok(); !ok {
				return invalidInput(errs)
			}
			entityIDs, ownerID, effective := dto.Values()
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				if len(entityIDs) == 1 {
					res, err := a.svc.ChangeOwner(a.ctx, entityIDs[0], ownerID, effective)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), res)
				}
				res, err := a.svc.BatchChangeOwner(a.ctx, entityIDs, ownerID, effective)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return withCode(exitNotFound, errBatchFailed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&dto.EntityIDs, "entities", nil, "Entity UUIDs (comma separated)")
	cmd.Flags().StringVar(&dto.OwnerID, "owner", "", "New owner UUID (required)")
	cmd.Flags().StringVar(&dto.EffectiveDate, "effective", "", "First day of the new owner (YYYY-MM-DD, required)")
	return cmd
}

func newUpsertCmd(flags *rootOptions) *cobra.Command {
	var dto assignment.HistoricalDTO
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Write a closed historical period, trimming whatever it overlaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs, ok := dto.Ok(); !ok {
				return invalidInput(errs)
			}
			entityIDs, ownerID, start, end := dto.Values()
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				if len(entityIDs) == 1 {
					res, err := a.svc.UpsertHistoricalAssignment(a.ctx, entityIDs[0], ownerID, start, &end)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), res)
				}
				res, err := a.svc.BatchUpsertHistoricalAssignment(a.ctx, entityIDs, ownerID, start, &end)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return withCode(exitNotFound, errBatchFailed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&dto.EntityIDs, "entities", nil, "Entity UUIDs (comma separated)")
	cmd.Flags().StringVar(&dto.OwnerID, "owner", "", "Owner UUID (required)")
	cmd.Flags().StringVar(&dto.StartDate, "start", "", "First day (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(&dto.EndDate, "end", "", "Last day (YYYY-MM-DD, required)")
	return cmd
}

func newUpdateCmd(flags *rootOptions) *cobra.Command {
	var dto assignment.UpdateDTO
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit one record; fails if the result would overlap another record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs, ok := dto.Ok(); !ok {
				return invalidInput(errs)
			}
			id, ownerID, start, end := dto.Values()
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				rec, err := a.svc.UpdateAssignment(a.ctx, id, ownerID, start, end)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&dto.ID, "id", "", "Record UUID (required)")
	cmd.Flags().StringVar(&dto.OwnerID, "owner", "", "Owner UUID (required)")
	cmd.Flags().StringVar(&dto.StartDate, "start", "", "First day (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(&dto.EndDate, "end", "", "Last day (YYYY-MM-DD); omit for an open-ended record")
	return cmd
}

func newDeleteCmd(flags *rootOptions) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove one record, leaving a gap",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", raw)
			if err != nil {
				return err
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				if err := a.svc.DeleteAssignment(a.ctx, id); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), struct {
					Deleted uuid.UUID `json:"deleted"`
				}{id})
			})
		},
	}
	cmd.Flags().StringVar(&raw, "id", "", "Record UUID (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
