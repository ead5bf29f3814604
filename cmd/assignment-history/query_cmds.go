package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
	"github.com/iota-uz/lendops/modules/assignments/services"
	"github.com/iota-uz/lendops/pkg/caldate"
)

type ownerOutput struct {
	EntityID uuid.UUID    `json:"entity_id"`
	Date     caldate.Date `json:"date"`
	OwnerID  *uuid.UUID   `json:"owner_id"`
}

func optionalID(id uuid.UUID, ok bool) *uuid.UUID {
	if !ok {
		return nil
	}
	return &id
}

func newOwnerAtCmd(flags *rootOptions) *cobra.Command {
	var entity, date, at string
	cmd := &cobra.Command{
		Use:   "owner-at",
		Short: "Owner of an entity on a day (or at an instant with --at)",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, err := parseID("entity", entity)
			if err != nil {
				return err
			}
			var instant time.Time
			if at != "" {
				instant, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return invalidInput(map[string]string{"at": "rfc3339"})
				}
			}
			day, err := parseDate("date", date)
			if err != nil {
				return err
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				var (
					owner uuid.UUID
					ok    bool
				)
				if at != "" {
					day = caldate.FromTime(instant)
					owner, ok, err = a.svc.OwnerAtTime(a.ctx, entityID, instant)
				} else {
					owner, ok, err = a.svc.OwnerAtDate(a.ctx, entityID, day)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), ownerOutput{EntityID: entityID, Date: day, OwnerID: optionalID(owner, ok)})
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Entity UUID (required)")
	cmd.Flags().StringVar(&date, "date", "", "Day (YYYY-MM-DD, default today UTC)")
	cmd.Flags().StringVar(&at, "at", "", "Instant (RFC3339); its UTC day is used")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newCurrentCmd(flags *rootOptions) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Owner of the entity's open-ended record",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, err := parseID("entity", entity)
			if err != nil {
				return err
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				owner, ok, err := a.svc.CurrentOwner(a.ctx, entityID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), ownerOutput{EntityID: entityID, Date: caldate.Today(), OwnerID: optionalID(owner, ok)})
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Entity UUID (required)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newHistoryCmd(flags *rootOptions) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Full assignment history of an entity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, err := parseID("entity", entity)
			if err != nil {
				return err
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				records, err := a.svc.FullHistory(a.ctx, entityID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), struct {
					EntityID uuid.UUID           `json:"entity_id"`
					Records  []assignment.Record `json:"records"`
				}{entityID, records})
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Entity UUID (required)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newOwnersAtCmd(flags *rootOptions) *cobra.Command {
	var (
		entities []string
		date     string
	)
	cmd := &cobra.Command{
		Use:   "owners-at",
		Short: "Owners of many entities on one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs("entities", entities)
			if err != nil {
				return err
			}
			day, err := parseDate("date", date)
			if err != nil {
				return err
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				owners, err := a.svc.OwnersAtDateBatch(a.ctx, ids, day)
				if err != nil {
					return err
				}
				out := make([]ownerOutput, 0, len(ids))
				for _, id := range ids {
					owner, ok := owners[id]
					out = append(out, ownerOutput{EntityID: id, Date: day, OwnerID: optionalID(owner, ok)})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringSliceVar(&entities, "entities", nil, "Entity UUIDs (comma separated)")
	cmd.Flags().StringVar(&date, "date", "", "Day (YYYY-MM-DD, default today UTC)")
	return cmd
}

type lookupOutput struct {
	EntityID  uuid.UUID    `json:"entity_id"`
	Date      caldate.Date `json:"date"`
	OwnerID   *uuid.UUID   `json:"owner_id"`
	OwnerName string       `json:"owner_name,omitempty"`
}

func newOwnersAtDatesCmd(flags *rootOptions) *cobra.Command {
	var lookups []string
	cmd := &cobra.Command{
		Use:   "owners-at-dates",
		Short: "Resolve many (entity, day) pairs with owner names",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]services.DateLookup, 0, len(lookups))
			for _, raw := range lookups {
				id, day, err := parseLookup(raw)
				if err != nil {
					return err
				}
				parsed = append(parsed, services.DateLookup{EntityID: id, Date: day})
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				refs, err := a.svc.OwnersAtDatesBatch(a.ctx, parsed)
				if err != nil {
					return err
				}
				out := make([]lookupOutput, 0, len(parsed))
				for _, l := range parsed {
					row := lookupOutput{EntityID: l.EntityID, Date: l.Date}
					if ref, ok := refs[l]; ok {
						row.OwnerID = optionalID(ref.OwnerID, true)
						row.OwnerName = ref.OwnerName
					}
					out = append(out, row)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringArrayVar(&lookups, "lookup", nil, "Lookup as <entity uuid>@<YYYY-MM-DD> (repeatable)")
	return cmd
}

func newEntitiesOwnedCmd(flags *rootOptions) *cobra.Command {
	var (
		owners         []string
		date, from, to string
	)
	cmd := &cobra.Command{
		Use:   "entities-owned",
		Short: "Entities held by any of the owners on a day or during a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs("owners", owners)
			if err != nil {
				return err
			}
			period := from != "" || to != ""
			var day, fromDay, toDay caldate.Date
			if period {
				if fromDay, err = parseDate("from", from); err != nil {
					return err
				}
				if toDay, err = parseDate("to", to); err != nil {
					return err
				}
			} else if day, err = parseDate("date", date); err != nil {
				return err
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				var entities []uuid.UUID
				if period {
					entities, err = a.svc.EntitiesOwnedDuringPeriod(a.ctx, ids, fromDay, toDay)
				} else {
					entities, err = a.svc.EntitiesOwnedAtDate(a.ctx, ids, day)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), struct {
					EntityIDs []uuid.UUID `json:"entity_ids"`
				}{entities})
			})
		},
	}
	cmd.Flags().StringSliceVar(&owners, "owners", nil, "Owner UUIDs (comma separated)")
	cmd.Flags().StringVar(&date, "date", "", "Day (YYYY-MM-DD, default today UTC)")
	cmd.Flags().StringVar(&from, "from", "", "Period start (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "Period end (YYYY-MM-DD, inclusive)")
	return cmd
}
