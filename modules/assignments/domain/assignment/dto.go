package assignment

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/lendops/pkg/caldate"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type BatchChangeOwnerDTO struct {
	EntityIDs     []string `json:"entity_ids" validate:"dive,required,uuid"`
	OwnerID       string   `json:"owner_id" validate:"required,uuid"`
	EffectiveDate string   `json:"effective_date" validate:"required,datetime=2006-01-02"`
}

func (d *BatchChangeOwnerDTO) Normalize() {
	for i := range d.EntityIDs {
		d.EntityIDs[i] = normalizeID(d.EntityIDs[i])
	}
	d.OwnerID = normalizeID(d.OwnerID)
	d.EffectiveDate = strings.TrimSpace(d.EffectiveDate)
}

func (d *BatchChangeOwnerDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return validationErrors(validate.Struct(d))
}

// Values must only be called after Ok reported success.
func (d *BatchChangeOwnerDTO) Values() ([]uuid.UUID, uuid.UUID, caldate.Date) {
	return mustParseIDs(d.EntityIDs), uuid.MustParse(d.OwnerID), caldate.MustParse(d.EffectiveDate)
}

type HistoricalDTO struct {
	EntityIDs []string `json:"entity_ids" validate:"min=1,dive,required,uuid"`
	OwnerID   string   `json:"owner_id" validate:"required,uuid"`
	StartDate string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string   `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (d *HistoricalDTO) Normalize() {
	for i := range d.EntityIDs {
		d.EntityIDs[i] = normalizeID(d.EntityIDs[i])
	}
	d.OwnerID = normalizeID(d.OwnerID)
	d.StartDate = strings.TrimSpace(d.StartDate)
	d.EndDate = strings.TrimSpace(d.EndDate)
}

func (d *HistoricalDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return validationErrors(validate.Struct(d))
}

func (d *HistoricalDTO) Values() ([]uuid.UUID, uuid.UUID, caldate.Date, caldate.Date) {
	return mustParseIDs(d.EntityIDs), uuid.MustParse(d.OwnerID), caldate.MustParse(d.StartDate), caldate.MustParse(d.EndDate)
}

type UpdateDTO struct {
	ID        string `json:"id" validate:"required,uuid"`
	OwnerID   string `json:"owner_id" validate:"required,uuid"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (d *UpdateDTO) Normalize() {
	d.ID = normalizeID(d.ID)
	d.OwnerID = normalizeID(d.OwnerID)
	d.StartDate = strings.TrimSpace(d.StartDate)
	d.EndDate = strings.TrimSpace(d.EndDate)
}

func (d *UpdateDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return validationErrors(validate.Struct(d))
}

func (d *UpdateDTO) Values() (uuid.UUID, uuid.UUID, caldate.Date, *caldate.Date) {
	var end *caldate.Date
	if d.EndDate != "" {
		end = caldate.MustParse(d.EndDate).Ptr()
	}
	return uuid.MustParse(d.ID), uuid.MustParse(d.OwnerID), caldate.MustParse(d.StartDate), end
}

func validationErrors(err error) (map[string]string, bool) {
	if err == nil {
		return map[string]string{}, true
	}
	out := map[string]string{}
	var errs validator.ValidationErrors
	if !asValidationErrors(err, &errs) {
		out["_"] = err.Error()
		return out, false
	}
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out, false
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	errs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func mustParseIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		out = append(out, uuid.MustParse(s))
	}
	return out
}
