package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// CurrencyRepository reads the currency configuration tables used by price triangulation.
type CurrencyRepository struct {
	db *sql.DB
}

// NewCurrencyRepository creates a new CurrencyRepository with the provided database connection.
func NewCurrencyRepository(db *sql.DB) *CurrencyRepository {
	return &CurrencyRepository{db: db}
}

// GetPriorityCurrencies returns the priority currency list, highest priority first.
func (s *CurrencyRepository) GetPriorityCurrencies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ccy
		FROM currency_priority
		ORDER BY priority ASC, ccy ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query currency_priority table: %w", err)
	}
	defer rows.Close()

	currencies := []string{}
	for rows.Next() {
		var ccy string
		if err := rows.Scan(&ccy); err != nil {
			return nil, fmt.Errorf("failed to scan currency_priority table results: %w", err)
		}
		currencies = append(currencies, ccy)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currency_priority table: %w", err)
	}

	return currencies, nil
}

// GetSynonyms returns the synonym table grouped by currency, each list in lookup order.
func (s *CurrencyRepository) GetSynonyms(ctx context.Context) (map[string][]model.CurrencySynonym, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ccy, synonym, multiplier
		FROM currency_synonym
		ORDER BY ccy ASC, position ASC, synonym ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query currency_synonym table: %w", err)
	}
	defer rows.Close()

	synonyms := make(map[string][]model.CurrencySynonym)
	for rows.Next() {
		var cs model.CurrencySynonym
		if err := rows.Scan(&cs.Currency, &cs.Synonym, &cs.Multiplier); err != nil {
			return nil, fmt.Errorf("failed to scan currency_synonym table results: %w", err)
		}
		synonyms[cs.Currency] = append(synonyms[cs.Currency], cs)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currency_synonym table: %w", err)
	}

	return synonyms, nil
}
