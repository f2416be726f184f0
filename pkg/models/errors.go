package models

import "errors"

// Error taxonomy shared by the store, the analytics services and the API.
// Callers wrap these with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	// ErrValidation reports bad caller input (negative cash, zero quantity, ...).
	ErrValidation = errors.New("validation error")

	// ErrNotFound reports an unknown portfolio or holding.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds reports a debit that would drive cash below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEmptyPortfolio reports a portfolio with no holdings where weights are required.
	ErrEmptyPortfolio = errors.New("portfolio has no holdings")

	// ErrDataUnavailable reports that a market-data collaborator could not
	// supply prices or history for a symbol.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInsufficientData reports fewer than two usable return series for a
	// covariance-based computation.
	ErrInsufficientData = errors.New("insufficient historical data")

	// ErrOptimizationNonConvergence is logged when the solver gives up. The
	// optimizer recovers with equal weights; it is never returned to callers.
	ErrOptimizationNonConvergence = errors.New("optimization did not converge")
)
