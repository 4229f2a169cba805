// backend/validator/validator.go
package validator

import (
	"strings"

	"github.com/hwtracker/backend/models"
)

// Weights are the externally supplied quality-score parameters.
type Weights struct {
	ErrorPenalty       float64
	CompletenessWeight float64
}

func DefaultWeights() Weights {
	return Weights{ErrorPenalty: 0.1, CompletenessWeight: 0.2}
}

// CheckRequiredFields returns the validation error codes for a normalized
// item. A failing item is not rejected; the codes are recorded on the item
// and degrade its quality score.
func CheckRequiredFields(item *models.HardwareItem) []string {
	var errs []string
	if len(strings.TrimSpace(item.Name)) < 3 {
		errs = append(errs, models.ErrCodeNameInvalid)
	}
	if item.Price != nil && *item.Price <= 0 {
		errs = append(errs, models.ErrCodePriceInvalid)
	}
	return errs
}

// Score computes the quality score for an item given its validation errors.
// The score starts at 1.0, loses ErrorPenalty per error, gains
// CompletenessWeight scaled by how many of the five key fields are populated,
// and is clamped to [0, 1].
func Score(item *models.HardwareItem, errs []string, w Weights) float64 {
	score := 1.0
	score -= float64(len(errs)) * w.ErrorPenalty

	populated := 0
	if strings.TrimSpace(item.Name) != "" {
		populated++
	}
	if item.Price != nil {
		populated++
	}
	if strings.TrimSpace(item.Brand) != "" {
		populated++
	}
	if item.Category != "" {
		populated++
	}
	if strings.TrimSpace(item.SourceURL) != "" {
		populated++
	}
	score += w.CompletenessWeight * (float64(populated) / 5.0)

	if score < 0.0 {
		score = 0.0
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Apply annotates the item with its validation errors, quality score and
// completeness flag. Identity fields are never touched, and the same input
// always produces the same annotations.
func Apply(item *models.HardwareItem, w Weights) {
	errs := CheckRequiredFields(item)
	item.ValidationErrors = errs
	item.QualityScore = Score(item, errs, w)
	item.IsComplete = len(errs) == 0
}
