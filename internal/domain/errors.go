package domain

import "errors"

var (
	// ErrDataIntegrity marks malformed or empty input data. Not retried.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrLeakage marks a same-day volatility column reaching the model.
	ErrLeakage = errors.New("leakage guard")
	// ErrTrialFailed marks a failed hyperparameter trial. It never leaves the search driver.
	ErrTrialFailed = errors.New("trial failed")
	// ErrEmptyGroup is returned when aggregation is asked to collapse zero predictions.
	ErrEmptyGroup = errors.New("empty aggregation group")
	// ErrModelUnavailable is returned when the registry has no artifact for a stage.
	ErrModelUnavailable = errors.New("model unavailable")
)
