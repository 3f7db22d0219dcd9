// Package numbering issues year-scoped document numbers.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DocType selects the sequence and the number prefix.
type DocType string

const (
	DocTypeQuote   DocType = "DEV"
	DocTypeInvoice DocType = "FAC"
)

// Generator reserves strictly unique numbers. Uniqueness is enforced by the
// document_sequences row upsert: Postgres serializes the two competing
// updates, so concurrent callers across any number of service instances never
// receive the same value. A reservation consumed by an aborted generation is
// never reclaimed; the sequence keeps a permanent gap.
type Generator struct {
	pool *pgxpool.Pool
}

// NewGenerator builds a Generator on the shared pool.
func NewGenerator(pool *pgxpool.Pool) *Generator {
	return &Generator{pool: pool}
}

// Next reserves and returns the next number for the document type, e.g.
// DEV-2026-042.
func (g *Generator) Next(ctx context.Context, doc DocType) (string, error) {
	year := time.Now().Year()
	var seq int64
	err := g.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, year, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, year)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, string(doc), year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("numbering: advance %s sequence: %w", doc, err)
	}
	return Format(doc, year, seq), nil
}

// Format renders a document number from its parts.
func Format(doc DocType, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", doc, year, seq)
}
