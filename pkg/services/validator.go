package services

import (
	"github.com/go-playground/validator/v10"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/models"
)

// TargetValidator filters query targets down to the runnable ones.
type TargetValidator struct {
	validate *validator.Validate
}

// NewTargetValidator creates a validator for models.QueryTarget.
func NewTargetValidator() *TargetValidator {
	return &TargetValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// IsValid reports whether target has a cache name, a format, a query and,
// for time series, a time column.
func (v *TargetValidator) IsValid(target models.QueryTarget) bool {
	return v.validate.Struct(target) == nil
}

// Validate returns the valid targets in their original order. The input slice
// is never modified. If nothing survives it fails with NoValidTargets.
func (v *TargetValidator) Validate(targets []models.QueryTarget) ([]models.QueryTarget, error) {
	candidates := make([]models.QueryTarget, len(targets))
	copy(candidates, targets)

	valid := candidates[:0]
	for _, t := range candidates {
		if v.IsValid(t) {
			valid = append(valid, t)
		}
	}

	if len(valid) == 0 {
		return nil, errors.NoValidTargets(len(targets))
	}
	return valid, nil
}
