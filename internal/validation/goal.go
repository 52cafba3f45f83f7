package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxCategoryLength    = 50
	MaxProofTextLength   = 5000
)

// ValidateGoalText validates the free-text fields of a new goal
func ValidateGoalText(title, description, category string) error {
	if err := requiredText("title", title, MaxTitleLength); err != nil {
		return err
	}
	if err := requiredText("description", description, MaxDescriptionLength); err != nil {
		return err
	}
	return requiredText("category", category, MaxCategoryLength)
}

// ValidateProofText validates the textual evidence of a proof submission
func ValidateProofText(text string) error {
	return requiredText("proof text", text, MaxProofTextLength)
}

func requiredText(field, value string, max int) error {
	trimmed := strings.TrimSpace(value)

	if trimmed == "" {
		return fmt.Errorf("%s is required", field)
	}

	if utf8.RuneCountInString(trimmed) > max {
		return fmt.Errorf("%s is too long (max %d characters)", field, max)
	}

	if strings.ContainsRune(trimmed, 0) {
		return errors.New(field + " contains invalid characters")
	}

	return nil
}
