package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Stage is one named step of the pacing schedule. Weight is the cumulative
// progress reported when the stage begins.
type Stage struct {
	Name     string
	Weight   int
	Duration time.Duration
}

// Stage names with dedicated run messages.
const (
	StageInitializing   = "Initializing"
	StageLoading        = "Loading data"
	StageAnalyzing      = "Analyzing structure"
	StageProcessing     = "Processing data"
	StageInsights       = "Generating insights"
	StageVisualizations = "Creating visualizations"
	StageFinalizing     = "Finalizing"
)

// DefaultStages is the standard schedule.
var DefaultStages = []Stage{
	{Name: StageInitializing, Weight: 10, Duration: 500 * time.Millisecond},
	{Name: StageLoading, Weight: 20, Duration: 800 * time.Millisecond},
	{Name: StageAnalyzing, Weight: 35, Duration: 1000 * time.Millisecond},
	{Name: StageProcessing, Weight: 60, Duration: 1500 * time.Millisecond},
	{Name: StageInsights, Weight: 80, Duration: 1200 * time.Millisecond},
	{Name: StageVisualizations, Weight: 95, Duration: 1000 * time.Millisecond},
	{Name: StageFinalizing, Weight: 100, Duration: 500 * time.Millisecond},
}

// ErrInvalidStages is returned by ValidateStages.
var ErrInvalidStages = errors.New("invalid stage schedule")

// ValidateStages checks that weights are within [0,100], never decrease and
// end at 100.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidStages)
	}
	prev := 0
	for i, s := range stages {
		if s.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidStages, i)
		}
		if s.Weight < prev || s.Weight > 100 {
			return fmt.Errorf("%w: stage %q weight %d out of order", ErrInvalidStages, s.Name, s.Weight)
		}
		if s.Duration < 0 {
			return fmt.Errorf("%w: stage %q has negative duration", ErrInvalidStages, s.Name)
		}
		prev = s.Weight
	}
	if prev != 100 {
		return fmt.Errorf("%w: final weight is %d, want 100", ErrInvalidStages, prev)
	}
	return nil
}

// TotalDuration sums the stage durations scaled by scale.
func TotalDuration(stages []Stage, scale float64) time.Duration {
	var d time.Duration
	for _, s := range stages {
		d += scaled(s.Duration, scale)
	}
	return d
}

func scaled(d time.Duration, scale float64) time.Duration {
	if scale <= 0 {
		return 0
	}
	return time.Duration(float64(d) * scale)
}
