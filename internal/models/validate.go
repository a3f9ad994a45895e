package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/miradorstack/firewall-mcp/internal/utils"
)

// MaxSearchLimit is the largest page size accepted by the entity search tools.
const MaxSearchLimit = 10000

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
			return EntityType(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// Validate checks a search request embedded in a correlation request.
func (r SearchRequest) Validate() error {
	return validateSearch("validate search request", r)
}

// ValidateStandalone checks a single-entity search, where limit is mandatory.
func (r SearchRequest) ValidateStandalone() error {
	const op = "validate entity search"
	if r.Limit < 1 || r.Limit > MaxSearchLimit {
		return utils.NewValidationError(op, fmt.Sprintf("limit must be between 1 and %d", MaxSearchLimit))
	}
	return validateSearch(op, r)
}

// Validate checks the basic cross-reference request shape.
func (r CrossReferenceRequest) Validate() error {
	const op = "validate cross reference"
	if err := structErrors(op, r); err != nil {
		return err
	}
	if err := validateFieldPair(op, r.CorrelationField); err != nil {
		return err
	}
	return validateQueries(op, r.PrimaryQuery, r.SecondaryQueries)
}

func validateFieldPair(op, entry string) error {
	primary, secondary := SplitFieldPair(entry)
	if primary == "" || secondary == "" {
		return utils.NewValidationError(op, fmt.Sprintf("correlation field %q is malformed", entry))
	}
	return nil
}

// Validate checks the enhanced cross-reference request shape, including field weights.
func (r EnhancedCrossReferenceRequest) Validate() error {
	const op = "validate enhanced cross reference"
	if err := structErrors(op, r); err != nil {
		return err
	}
	if err := validateQueries(op, r.PrimaryQuery, r.SecondaryQueries); err != nil {
		return err
	}

	params := r.CorrelationParams
	known := make(map[string]struct{}, len(params.CorrelationFields))
	for _, entry := range params.CorrelationFields {
		if err := validateFieldPair(op, entry); err != nil {
			return err
		}
		known[strings.TrimSpace(entry)] = struct{}{}
	}
	for field, weight := range params.FieldWeights {
		if _, ok := known[field]; !ok {
			return utils.NewValidationError(op, fmt.Sprintf("field_weights key %q is not a correlation field", field))
		}
		if weight < 0 || weight > 1 {
			return utils.NewValidationError(op, fmt.Sprintf("field_weights[%s] must be within [0,1]", field))
		}
	}
	return nil
}

// Validate checks a suggestion request.
func (r SuggestRequest) Validate() error {
	const op = "validate suggestion request"
	if err := structErrors(op, r); err != nil {
		return err
	}
	return validateQueries(op, r.PrimaryQuery, r.SecondaryQueries)
}

// Validate checks a pattern before it is accepted into a catalog.
func (p CorrelationPattern) Validate() error {
	return structErrors("validate correlation pattern", p)
}

func validateQueries(op string, primary SearchRequest, secondaries []SearchRequest) error {
	if err := validateSearch(op, primary); err != nil {
		return err
	}
	for _, secondary := range secondaries {
		if err := validateSearch(op, secondary); err != nil {
			return err
		}
	}
	return nil
}

func validateSearch(op string, r SearchRequest) error {
	if err := structErrors(op, r); err != nil {
		return err
	}
	if r.TimeRange == nil {
		return nil
	}
	start, err := utils.ParseRFC3339(r.TimeRange.Start)
	if err != nil {
		return utils.NewValidationError(op, fmt.Sprintf("time_range.start: %v", err))
	}
	end, err := utils.ParseRFC3339(r.TimeRange.End)
	if err != nil {
		return utils.NewValidationError(op, fmt.Sprintf("time_range.end: %v", err))
	}
	if end.Before(start) {
		return utils.NewValidationError(op, "time_range.end must not precede time_range.start")
	}
	return nil
}

func structErrors(op string, value any) error {
	err := validatorInstance().Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return utils.NewValidationError(op, err.Error())
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}
	return utils.NewValidationError(op, strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	name := fe.Namespace()
	if _, rest, ok := strings.Cut(name, "."); ok {
		name = rest
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must contain at most %s item(s)", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", name, fe.Param())
	case "entity_type":
		return fmt.Sprintf("%s must be one of flows, alarms, devices, rules, target_lists", name)
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
