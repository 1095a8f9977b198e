package rules

import (
	"math"

	"github.com/wfunc/quizserver/models"
)

// DailyDoubleLimits returns the inclusive wager range for a daily double.
func DailyDoubleLimits(score, value int) (lo, hi int) {
	return MinDailyDoubleWager, max(score, value, MinDailyDoubleWager)
}

// FinalLimits returns the inclusive wager range for the final round.
func FinalLimits(score int) (lo, hi int) {
	if score > 0 {
		return MinFinalWager, score
	}
	return MinFinalWager, FinalWagerFloorForNeg
}

func ValidateDailyDoubleWager(wager, score, value int) error {
	lo, hi := DailyDoubleLimits(score, value)
	if wager < lo || wager > hi {
		return models.Errorf(models.KindInvalidWager, "wager must be between %d and %d", lo, hi)
	}
	return nil
}

func ValidateFinalWager(wager, score int) error {
	lo, hi := FinalLimits(score)
	if wager < lo || wager > hi {
		return models.Errorf(models.KindInvalidWager, "wager must be between %d and %d", lo, hi)
	}
	return nil
}

// WagerFromFloat converts a decoded JSON number. Fractions, negatives and non-finite
// values are rejected.
func WagerFromFloat(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, models.Errorf(models.KindInvalidWager, "wager must be a whole number")
	}
	return int(f), nil
}
