package finance

import "github.com/shopspring/decimal"

// =============================================================================
// BUDGET STATUS - Severity classification of a consumption ratio
// =============================================================================

// Status is a budget severity, totally ordered
// healthy < caution < warning < critical.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusCaution  Status = "caution"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Priority returns the rank of s; unknown values rank with healthy.
func (s Status) Priority() int {
	switch s {
	case StatusCaution:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	default:
		return 0
	}
}

// MaxStatus returns the more severe of a and b.
func MaxStatus(a, b Status) Status {
	if b.Priority() > a.Priority() {
		return b
	}
	return a
}

// ClassifierConfig carries the defaults that used to be read from process
// config. It is injected, never looked up.
type ClassifierConfig struct {
	// DefaultThresholds apply to budgets whose own list is empty or invalid.
	DefaultThresholds []float64

	// Fixed cutoffs used when no threshold list is available at all.
	CautionCutoff float64
	WarningCutoff float64
}

// DefaultClassifierConfig returns the built-in cutoffs (0.6 caution, 0.85
// warning) and no default thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		CautionCutoff: 0.6,
		WarningCutoff: 0.85,
	}
}

// Classifier maps consumption against a limit to a Status.
type Classifier struct {
	Config ClassifierConfig
}

// NewClassifier normalizes the configured default thresholds once.
func NewClassifier(cfg ClassifierConfig) Classifier {
	cfg.DefaultThresholds = NormalizeThresholds(cfg.DefaultThresholds)
	return Classifier{Config: cfg}
}

// EffectiveThresholds returns the budget's normalized thresholds, falling
// back to the configured defaults when none survive normalization.
func (c Classifier) EffectiveThresholds(thresholds []float64) []float64 {
	if normalized := NormalizeThresholds(thresholds); len(normalized) > 0 {
		return normalized
	}
	return NormalizeThresholds(c.Config.DefaultThresholds)
}

// Classify returns the status of consumption against limit. A limit that is
// not positive has no ratio and is always healthy.
func (c Classifier) Classify(consumption, limit decimal.Decimal, thresholds []float64) Status {
	if !limit.IsPositive() {
		return StatusHealthy
	}
	ratio := consumption.Div(limit).InexactFloat64()
	return c.ClassifyRatio(ratio, thresholds)
}

// ClassifyRatio applies the threshold rules to a consumption ratio.
//
// The caution cutoff is the first ascending threshold below the maximum, not
// the second highest. With three or more thresholds every interior value is
// therefore inert; this mirrors the behaviour budgets were configured
// against and is kept until product decides otherwise.
func (c Classifier) ClassifyRatio(ratio float64, thresholds []float64) Status {
	if ratio >= 1 {
		return StatusCritical
	}

	effective := c.EffectiveThresholds(thresholds)
	if len(effective) > 0 {
		warning := effective[len(effective)-1]
		caution := effective[0]
		for _, t := range effective {
			if t < warning {
				caution = t
				break
			}
		}

		if ratio >= warning {
			return StatusWarning
		}
		if ratio >= caution {
			return StatusCaution
		}
		return StatusHealthy
	}

	caution, warning := c.cutoffs()
	if ratio >= warning {
		return StatusWarning
	}
	if ratio >= caution {
		return StatusCaution
	}
	return StatusHealthy
}

// cutoffs lets the zero Classifier behave like DefaultClassifierConfig.
func (c Classifier) cutoffs() (caution, warning float64) {
	if c.Config.CautionCutoff == 0 && c.Config.WarningCutoff == 0 {
		d := DefaultClassifierConfig()
		return d.CautionCutoff, d.WarningCutoff
	}
	return c.Config.CautionCutoff, c.Config.WarningCutoff
}
