package apperrors

import "errors"

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrJobNotFound indicates that a background report job with the given ID does not exist
	// or has already been pruned from the registry.
	ErrJobNotFound = errors.New("report job not found")

	// ErrProgressNotFound indicates that no report has emitted progress for the user yet.
	ErrProgressNotFound = errors.New("report progress not found")

	// ErrSymbolNotFound indicates that the price provider does not know the requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Tax engine errors. ErrPriceNotFound is handled locally by the triangulation engine
// (the currency ends up in the delisted list); the others abort the whole report.
var (
	// ErrPriceNotFound indicates that no historical price could be resolved for a currency.
	ErrPriceNotFound = errors.New("price not found")

	// ErrCurrencyPairSeparation indicates that a pair symbol could not be split into base and quote.
	ErrCurrencyPairSeparation = errors.New("currency pair separation error")

	// ErrCurrencyConversion indicates that a transaction reached lot matching without a USD price.
	ErrCurrencyConversion = errors.New("currency conversion error")

	// ErrGenerationTimeout indicates that price triangulation exceeded its wall-clock guard.
	ErrGenerationTimeout = errors.New("tax report generation timeout")

	// ErrInterrupted is not a failure: it signals a controlled early return after cancellation.
	ErrInterrupted = errors.New("operation interrupted")
)

// Business logic errors represent validation failures or constraint violations.
// These errors indicate that an operation cannot be completed due to business rules.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidStrategy indicates that both FIFO and LIFO were requested.
	ErrInvalidStrategy = errors.New("isFIFO and isLIFO are mutually exclusive")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrMissingUser indicates that the request carried no user identity.
	ErrMissingUser = errors.New("user ID is required")

	// ErrUnknownInterrupter indicates that an interrupt request named an unsupported operation.
	ErrUnknownInterrupter = errors.New("unknown interrupter name")
)

// Operation failure errors represent system-level failures when retrieving or processing data.
var (
	ErrFailedToRetrieveTrades    = errors.New("failed to retrieve trades")
	ErrFailedToRetrieveMovements = errors.New("failed to retrieve movements")
	ErrFailedToRetrieveCurrency  = errors.New("failed to retrieve currency configuration")
	ErrFailedToPersistUsdValues  = errors.New("failed to persist usd values")
	ErrFailedToGenerateReport    = errors.New("failed to generate transaction tax report")
	ErrFailedToGetVersionInfo    = errors.New("failed to get version information")
)
