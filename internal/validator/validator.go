// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"famfin/internal/models"
	"famfin/internal/period"
	"famfin/internal/proration"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("obligation_kind", validateObligationKind)
		_ = v.RegisterValidation("frequency", validateFrequency)
		_ = v.RegisterValidation("budget_period", validateBudgetPeriod)
		_ = v.RegisterValidation("obligation_frequency", validateObligationFrequency)
		_ = v.RegisterValidation("period_type", validatePeriodType)
		_ = v.RegisterValidation("period_id", validatePeriodID)
	}
}

func validateObligationKind(fl validator.FieldLevel) bool {
	switch models.ObligationKind(fl.Field().String()) {
	case models.ObligationKindBudget, models.ObligationKindOutflow, models.ObligationKindInflow:
		return true
	}
	return false
}

// validateFrequency accepts the cadences of bills, income and the transaction feed.
func validateFrequency(fl validator.FieldLevel) bool {
	return proration.Frequency(fl.Field().String()).Valid()
}

func validateBudgetPeriod(fl validator.FieldLevel) bool {
	_, ok := period.TypeForBudgetPeriod(fl.Field().String())
	return ok
}

// validateObligationFrequency accepts either vocabulary; the service checks the value
// against the obligation's kind.
func validateObligationFrequency(fl validator.FieldLevel) bool {
	return validateFrequency(fl) || validateBudgetPeriod(fl)
}

func validatePeriodType(fl validator.FieldLevel) bool {
	return period.Type(fl.Field().String()).Valid()
}

func validatePeriodID(fl validator.FieldLevel) bool {
	_, err := period.ParseID(fl.Field().String())
	return err == nil
}
