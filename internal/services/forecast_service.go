package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/irfndi/celebrum-forecast/internal/config"
	"github.com/irfndi/celebrum-forecast/internal/logging"
	"github.com/irfndi/celebrum-forecast/internal/models"
	"github.com/irfndi/celebrum-forecast/internal/telemetry"
)

// ForecastService turns price series into combined forecasts using the
// configured rule set.
type ForecastService struct {
	config     *config.Config
	multiplier *DiversificationMultiplier
	logger     *logrus.Logger
	now        func() time.Time
}

// NewForecastService validates the combination settings against the rule set.
func NewForecastService(cfg *config.Config, logger *logrus.Logger) (*ForecastService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("forecast service: config must not be nil")
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	multiplier, err := NewDiversificationMultiplier(cfg.Rules.Weights(), cfg.Combination.Correlations)
	if err != nil {
		return nil, fmt.Errorf("invalid combination settings: %w", err)
	}

	return &ForecastService{
		config:     cfg,
		multiplier: multiplier,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Multiplier returns the diversification multiplier shared by all instruments.
func (s *ForecastService) Multiplier() *DiversificationMultiplier {
	return s.multiplier
}

// BuildRules creates the configured rules over series: crossover rules in
// configuration order, then the volatility differential rule when enabled.
func (s *ForecastService) BuildRules(series *models.PriceSeries) ([]ForecastRule, error) {
	rules := make([]ForecastRule, 0, len(s.config.Rules.EWMAC)+1)
	for _, rc := range s.config.Rules.EWMAC {
		rule, err := NewEWMAC(series, rc.ShortHorizon, rc.LongHorizon)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	vd := s.config.Rules.VolatilityDifferential
	if vd.Enabled {
		loc, err := s.config.Data.Location()
		if err != nil {
			return nil, err
		}
		start, end, err := vd.ReferenceWindow(loc)
		if err != nil {
			return nil, err
		}
		rule, err := NewVolatilityDifferentialRule(series, nil, start, end, vd.Lookback)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Scalars returns one forecast scalar per rule. Configured scalars are used as
// is; a zero scalar is estimated from the rule's own history.
func (s *ForecastService) Scalars(rules []ForecastRule) ([]float64, error) {
	configured := s.configuredScalars()
	if len(configured) != len(rules) {
		return nil, fmt.Errorf("forecast service: %d rules but %d configured scalars", len(rules), len(configured))
	}

	scalars := make([]float64, len(rules))
	for i, rule := range rules {
		if configured[i] != 0 {
			scalars[i] = configured[i]
			continue
		}
		estimated, err := EstimateForecastScalar(rule, s.config.Combination.BaseScale)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate scalar for %s: %w", rule.Name(), err)
		}
		s.logger.WithFields(logrus.Fields{
			"rule":   rule.Name(),
			"scalar": estimated,
		}).Debug("Estimated forecast scalar")
		scalars[i] = estimated
	}
	return scalars, nil
}

func (s *ForecastService) configuredScalars() []float64 {
	scalars := make([]float64, 0, len(s.config.Rules.EWMAC)+1)
	for _, rc := range s.config.Rules.EWMAC {
		scalars = append(scalars, rc.Scalar)
	}
	if s.config.Rules.VolatilityDifferential.Enabled {
		scalars = append(scalars, s.config.Rules.VolatilityDifferential.Scalar)
	}
	return scalars
}

// Compute builds the rules for series and combines their forecasts at the
// latest observation.
func (s *ForecastService) Compute(ctx context.Context, series *models.PriceSeries) (*models.ForecastResult, error) {
	if series == nil {
		return nil, fmt.Errorf("forecast service: price series must not be nil")
	}

	_, span := telemetry.Tracer().Start(ctx, "forecast.compute")
	defer span.End()
	span.SetAttributes(
		attribute.String("forecast.instrument", series.Name()),
		attribute.Int("forecast.points", series.Len()),
	)

	result, err := s.compute(series)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.WithInstrument(s.logger, series.Name()).WithError(err).Error("Failed to compute forecast")
		return nil, err
	}

	combined, _ := result.Combined.Float64()
	span.SetAttributes(attribute.Float64("forecast.combined", combined))
	logging.WithInstrument(s.logger, series.Name()).WithFields(logrus.Fields{
		"as_of":    result.AsOf.Format(config.ReferenceDateLayout),
		"combined": result.Combined.String(),
		"rules":    len(result.Rules),
	}).Info("Computed forecast")

	return result, nil
}

func (s *ForecastService) compute(series *models.PriceSeries) (*models.ForecastResult, error) {
	rules, err := s.BuildRules(series)
	if err != nil {
		return nil, fmt.Errorf("failed to build rules for %s: %w", series.Name(), err)
	}
	scalars, err := s.Scalars(rules)
	if err != nil {
		return nil, err
	}
	combiner, err := NewForecastCombiner(rules, scalars, s.multiplier, s.config.Combination.ForecastCap)
	if err != nil {
		return nil, err
	}
	combined, err := combiner.Combine()
	if err != nil {
		return nil, fmt.Errorf("failed to combine forecasts for %s: %w", series.Name(), err)
	}

	last, _ := series.Primary().Last()
	if err := finiteResult(last.Value, combined); err != nil {
		return nil, fmt.Errorf("failed to compute forecast for %s: %w", series.Name(), err)
	}
	result := &models.ForecastResult{
		ID:                        uuid.New().String(),
		Instrument:                series.Name(),
		AsOf:                      last.Timestamp,
		LastPrice:                 models.RoundForecast(last.Value),
		Rules:                     make([]models.RuleForecast, 0, len(combined.Contributions)),
		DiversificationMultiplier: models.RoundForecast(combined.Multiplier),
		Combined:                  models.RoundForecast(combined.Value),
		CalculatedAt:              s.now().UTC(),
	}
	for _, c := range combined.Contributions {
		result.Rules = append(result.Rules, models.RuleForecast{
			Rule:   c.Rule,
			Raw:    models.RoundForecast(c.Raw),
			Scalar: models.RoundForecast(c.Scalar),
			Scaled: models.RoundForecast(c.Scaled),
			Weight: models.RoundForecast(c.Weight),
		})
	}
	return result, nil
}

// finiteResult checks every value that is rounded into a ForecastResult.
func finiteResult(lastPrice float64, combined *CombinedForecast) error {
	if err := requireFinite("last price", lastPrice); err != nil {
		return err
	}
	if err := requireFinite("diversification multiplier", combined.Multiplier); err != nil {
		return err
	}
	if err := requireFinite("combined forecast", combined.Value); err != nil {
		return err
	}
	for _, c := range combined.Contributions {
		for _, v := range []float64{c.Raw, c.Scalar, c.Scaled, c.Weight} {
			if err := requireFinite(c.Rule+" forecast", v); err != nil {
				return err
			}
		}
	}
	return nil
}

// InstrumentError reports a failed instrument in ComputeAll.
type InstrumentError struct {
	Instrument string
	Err        error
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument %s: %v", e.Instrument, e.Err)
}

func (e *InstrumentError) Unwrap() error {
	return e.Err
}

// ComputeAll computes forecasts for every series concurrently. Results keep
// the input order; failed instruments are left out and reported in errs.
func (s *ForecastService) ComputeAll(ctx context.Context, series []*models.PriceSeries) ([]*models.ForecastResult, []error) {
	results := make([]*models.ForecastResult, len(series))
	failures := make([]error, len(series))

	var wg sync.WaitGroup
	for i, ps := range series {
		wg.Add(1)
		go func(i int, ps *models.PriceSeries) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return
			}
			name := ""
			if ps != nil {
				name = ps.Name()
			}
			result, err := s.Compute(ctx, ps)
			if err != nil {
				failures[i] = &InstrumentError{Instrument: name, Err: err}
				return
			}
			results[i] = result
		}(i, ps)
	}
	wg.Wait()

	var out []*models.ForecastResult
	var errs []error
	for i := range series {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		out = append(out, results[i])
	}
	return out, errs
}
