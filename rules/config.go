package rules

import (
	"github.com/wfunc/quizserver/models"
)

// DefaultConfig is used for every field the creator leaves unset.
func DefaultConfig() models.SessionConfig {
	return models.SessionConfig{
		CategoryMode:      models.CategoryModeRandom,
		QuestionCount:     25,
		TimerSpeed:        models.TimerSpeedStandard,
		DailyDoubleCount:  DefaultDailyDoubles,
		FinalRoundEnabled: true,
	}
}

// CategoriesFor is the number of board columns for a question count.
func CategoriesFor(questionCount int) int {
	return questionCount / QuestionsPerColumn
}

// ValidateConfig checks the structural validity of cfg. Content availability is checked
// by the question provider.
func ValidateConfig(cfg models.SessionConfig) error {
	switch cfg.CategoryMode {
	case models.CategoryModeRandom, models.CategoryModeTrueRandom:
	case models.CategoryModeManual:
		if len(cfg.SelectedCategories) != CategoriesFor(cfg.QuestionCount) {
			return models.Errorf(models.KindInvalidConfiguration,
				"manual mode needs exactly %d categories", CategoriesFor(cfg.QuestionCount))
		}
	case models.CategoryModePack:
		if cfg.PackName == "" {
			return models.Errorf(models.KindInvalidConfiguration, "pack mode needs a pack name")
		}
	default:
		return models.Errorf(models.KindInvalidConfiguration, "unknown category mode %q", cfg.CategoryMode)
	}
	if cfg.QuestionCount != 15 && cfg.QuestionCount != 25 {
		return models.Errorf(models.KindInvalidConfiguration, "question count must be 15 or 25")
	}
	if cfg.TimerSpeed != models.TimerSpeedStandard && cfg.TimerSpeed != models.TimerSpeedFast {
		return models.Errorf(models.KindInvalidConfiguration, "unknown timer speed %q", cfg.TimerSpeed)
	}
	if cfg.DailyDoubleCount < MinDailyDoubles || cfg.DailyDoubleCount > MaxDailyDoubles {
		return models.Errorf(models.KindInvalidConfiguration,
			"daily double count must be between %d and %d", MinDailyDoubles, MaxDailyDoubles)
	}
	return nil
}
