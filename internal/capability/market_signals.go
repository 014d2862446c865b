package capability

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Forecast shape
const (
	DefaultForecastPeriods = 4
	MaxForecastPeriods     = 24

	trendWindow   = 6
	averageWindow = 3
	trendWeight   = 0.6
)

// Observation is one period of regulatory activity.
type Observation struct {
	Period        string  `json:"period"`
	ActivityCount float64 `json:"activity_count"`
}

// MarketInput is a time-ordered activity history for an industry.
type MarketInput struct {
	Industry        string        `json:"industry"`
	History         []Observation `json:"history"`
	ForecastPeriods int           `json:"forecast_periods"`
}

// Forecast is the predicted activity of a future period.
type Forecast struct {
	Period            string  `json:"period"`
	PredictedActivity float64 `json:"predicted_activity"`
	Confidence        float64 `json:"confidence"`
	Trend             string  `json:"trend"`
}

// MarketResult holds the forecasts for an industry.
type MarketResult struct {
	Industry    string     `json:"industry"`
	Predictions []Forecast `json:"predictions"`
	ModelType   string     `json:"model_type"`
}

// MarketSignalPredictorModel blends a least-squares trend with a short
// moving average. It needs no training and is always loaded.
type MarketSignalPredictorModel struct {
	base
}

var _ Predictor[MarketInput, MarketResult] = (*MarketSignalPredictorModel)(nil)

func NewMarketSignalPredictor() *MarketSignalPredictorModel {
	return &MarketSignalPredictorModel{base: newBase(MarketSignalPredictor, true)}
}

func (m *MarketSignalPredictorModel) Predict(_ context.Context, in MarketInput) (MarketResult, error) {
	return m.Fallback(in), nil
}

func (m *MarketSignalPredictorModel) Fallback(in MarketInput) MarketResult {
	res := MarketResult{Industry: in.Industry, Predictions: []Forecast{}, ModelType: "moving_average"}
	if len(in.History) == 0 {
		return res
	}
	periods := in.ForecastPeriods
	if periods <= 0 {
		periods = DefaultForecastPeriods
	}
	periods = min(periods, MaxForecastPeriods)

	values := make([]float64, len(in.History))
	for i, h := range in.History {
		values[i] = h.ActivityCount
	}

	window := min(trendWindow, len(values))
	slope, intercept := linearTrend(values[len(values)-window:])

	maWindow := min(averageWindow, len(values))
	movingAvg := floats.Sum(values[len(values)-maWindow:]) / float64(maWindow)

	label := "stable"
	switch {
	case slope > 0.5:
		label = "increasing"
	case slope < -0.5:
		label = "decreasing"
	}

	last := in.History[len(in.History)-1].Period
	for i := 1; i <= periods; i++ {
		trend := intercept + slope*float64(window+i)
		blended := trend*trendWeight + movingAvg*(1-trendWeight)
		res.Predictions = append(res.Predictions, Forecast{
			Period:            nextPeriod(last, i),
			PredictedActivity: round(math.Max(0, blended), 2),
			Confidence:        round(math.Max(0.1, 1-0.15*float64(i)), 4),
			Trend:             label,
		})
	}
	return res
}

// linearTrend fits values against their index and returns slope and
// intercept. A single point is a flat line through it.
func linearTrend(values []float64) (slope, intercept float64) {
	if len(values) < 2 {
		return 0, values[0]
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, values, nil, false)
	return beta, alpha
}

// nextPeriod advances a YYYY-QN label by offset quarters. Other labels
// become T+offset.
func nextPeriod(last string, offset int) string {
	year, quarter, ok := strings.Cut(last, "-Q")
	if ok {
		y, errY := strconv.Atoi(year)
		q, errQ := strconv.Atoi(quarter)
		if errY == nil && errQ == nil {
			total := y*4 + q - 1 + offset
			return fmt.Sprintf("%d-Q%d", total/4, total%4+1)
		}
	}
	return fmt.Sprintf("T+%d", offset)
}

func (m *MarketSignalPredictorModel) Save(dir string) error { return m.saveStateless(dir) }
func (m *MarketSignalPredictorModel) Load(dir string) error { return m.loadStateless(dir) }
