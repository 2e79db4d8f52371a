package app

import (
	"context"

	"exam-session-engine/internal/domain"
)

// CheckAvailability counts the questions eligible under filter without loading
// their bodies. It has no side effects beyond cache population.
func (s *ExamService) CheckAvailability(ctx context.Context, filter domain.Filter, includeBreakdown bool) (result domain.Availability, err error) {
	ctx, done := s.startOp(ctx, "CheckAvailability", "")
	defer done(&err)

	normalized, err := filter.Normalize()
	if err != nil {
		return domain.Availability{}, err
	}

	counted, err := s.availability.CountEligible(ctx, normalized)
	if err != nil {
		return domain.Availability{}, dependencyErr("count eligible questions", err)
	}

	result = domain.Availability{Total: counted.Total}
	if includeBreakdown {
		result.ByDifficulty = make(map[string]int, len(domain.Difficulties))
		for _, d := range domain.Difficulties {
			result.ByDifficulty[d] = 0
		}
		for d, n := range counted.ByDifficulty {
			result.ByDifficulty[d] = n
		}
	}
	return result, nil
}
