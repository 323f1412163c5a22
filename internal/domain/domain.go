package domain

import (
	"strings"
	"time"
)

// HeadlineSlots is the number of ordered headline columns (Top1..Top25) on a wide row.
const HeadlineSlots = 25

// DecisionThreshold splits probabilities into classes. Exactly 0.5 is class 0.
const DecisionThreshold = 0.5

// ClassFor applies the binary decision rule shared by the model, the aggregator
// and the batch scorer.
func ClassFor(probability float64) int {
	if probability > DecisionThreshold {
		return 1
	}
	return 0
}

// DateKey is the calendar day a record belongs to, formatted as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// TruncateDay drops the clock part of t, keeping the UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WideRecord is one calendar day: the label, up to 25 headline slots and the
// same-day scalar columns.
type WideRecord struct {
	Date      time.Time
	Label     int
	Headlines [HeadlineSlots]string
	Scalars   map[string]float64
}

// NonBlankHeadlines returns the non-blank slots in slot order.
func (w WideRecord) NonBlankHeadlines() []string {
	out := make([]string, 0, HeadlineSlots)
	for _, h := range w.Headlines {
		if strings.TrimSpace(h) == "" {
			continue
		}
		out = append(out, h)
	}
	return out
}

// TallRecord is one (day, headline) pair carrying the day's numeric features.
type TallRecord struct {
	Date     time.Time          `json:"date"`
	Headline string             `json:"headline"`
	Label    int                `json:"vol_up"`
	Features map[string]float64 `json:"features"`
}

// HistoricalFeatureSet is the per-day numeric snapshot shared by every headline
// of that day: volatility lags, trailing means and calendar indicators.
type HistoricalFeatureSet struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// HeadlinePrediction is the model output for a single headline.
type HeadlinePrediction struct {
	Headline    string  `json:"headline"`
	Probability float64 `json:"prediction_proba"`
	Class       int     `json:"prediction_class"`
}

// NewHeadlinePrediction derives the class from the probability.
func NewHeadlinePrediction(headline string, probability float64) HeadlinePrediction {
	return HeadlinePrediction{Headline: headline, Probability: probability, Class: ClassFor(probability)}
}

// Policy names a daily aggregation rule.
type Policy string

const (
	PolicyMeanProba    Policy = "mean_proba"
	PolicyMajorityVote Policy = "majority_vote"
	PolicyMaxProba     Policy = "max_proba"
)

// Policies lists every aggregation policy in reporting order.
var Policies = []Policy{PolicyMeanProba, PolicyMajorityVote, PolicyMaxProba}

// PolicyOutcome is one policy's daily decision. Probability is nil for
// policies that do not produce one (majority vote).
type PolicyOutcome struct {
	Probability *float64 `json:"probability,omitempty"`
	Class       int      `json:"class"`
}

// DailyAggregate collapses every headline prediction of one day.
type DailyAggregate struct {
	Date         time.Time     `json:"date"`
	NumHeadlines int           `json:"num_headlines"`
	TrueLabel    *int          `json:"true_label,omitempty"`
	MeanProba    PolicyOutcome `json:"mean_proba"`
	MajorityVote PolicyOutcome `json:"majority_vote"`
	MaxProba     PolicyOutcome `json:"max_proba"`
}

// Outcome returns the decision for the given policy.
func (d DailyAggregate) Outcome(p Policy) (PolicyOutcome, bool) {
	switch p {
	case PolicyMeanProba:
		return d.MeanProba, true
	case PolicyMajorityVote:
		return d.MajorityVote, true
	case PolicyMaxProba:
		return d.MaxProba, true
	default:
		return PolicyOutcome{}, false
	}
}

// ScoringRecord is the flat record handed to downstream monitoring.
type ScoringRecord struct {
	Date                   string    `json:"date"`
	PredictionMeanProba    float64   `json:"prediction_mean_proba"`
	PredictionMeanClass    int       `json:"prediction_mean_class"`
	PredictionMajorityVote int       `json:"prediction_majority_vote"`
	PredictionMaxProba     float64   `json:"prediction_max_proba"`
	PredictionMaxClass     int       `json:"prediction_max_class"`
	NumHeadlines           int       `json:"num_headlines"`
	ModelVersion           string    `json:"model_version"`
	TrueLabel              *int      `json:"true_label,omitempty"`
	Timestamp              time.Time `json:"timestamp"`
	Error                  string    `json:"error,omitempty"`
}

// Stage is a model registry lifecycle stage.
type Stage string

const (
	StageNone       Stage = "None"
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

// ParseStage accepts stage names case-insensitively.
func ParseStage(s string) (Stage, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return StageNone, true
	case "staging":
		return StageStaging, true
	case "production":
		return StageProduction, true
	case "archived":
		return StageArchived, true
	default:
		return "", false
	}
}

// ModelArtifact is a registered, immutable fitted pipeline plus the
// hyperparameters and metrics that produced it.
type ModelArtifact struct {
	ID                 int64
	ModelKey           string
	Version            int
	Stage              Stage
	FeatureSpecVersion string
	TrainedFrom        time.Time
	TrainedTo          time.Time
	TrainedAt          time.Time
	HyperparamsJSON    string
	MetricsJSON        string
	Description        string
	ArtifactFormat     string
	ArtifactBlob       []byte
	StageChangedAt     *time.Time
	CreatedAt          time.Time
}

// SearchTrial is one hyperparameter trial as persisted by experiment tracking.
type SearchTrial struct {
	SessionID  string
	Number     int
	ParamsJSON string
	Metrics    map[string]float64
	Loss       float64
	Error      string
	StartedAt  time.Time
	Duration   time.Duration
}

// MonitoringMetric is one named value produced by a monitoring run.
type MonitoringMetric struct {
	Name         string
	Value        float64
	ModelVersion string
	Timestamp    time.Time
}

// Alert is a threshold breach found by monitoring.
type Alert struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}
