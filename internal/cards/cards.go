// Package cards materializes the deliverable cards of a completed team
// spec. Materialization is idempotent: a session that already has cards is
// left untouched, so re-driving a completed session is safe.
package cards

import (
	"context"
	"fmt"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/store"
)

// Generator creates cards from team spec chunks.
type Generator struct {
	store store.Store
}

// NewGenerator creates a card generator.
func NewGenerator(s store.Store) *Generator {
	return &Generator{store: s}
}

// Materialize creates one card per chunk for the session. It is a no-op if
// the session already has cards. An empty chunk set is valid and creates
// nothing.
func (g *Generator) Materialize(ctx context.Context, sessionID string, chunks []models.SpecChunk) ([]*models.Card, error) {
	existing, err := g.store.CountCards(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check existing cards: %w", err)
	}
	if existing > 0 {
		return g.store.ListCards(ctx, sessionID)
	}

	cards := make([]*models.Card, len(chunks))
	for i, chunk := range chunks {
		cards[i] = &models.Card{
			SessionID:          sessionID,
			Title:              chunk.Title,
			Description:        chunk.Description,
			AcceptanceCriteria: chunk.AcceptanceCriteria,
			Dependencies:       chunk.Dependencies,
			HasUI:              chunk.HasUI,
			Status:             models.CardStatusBacklog,
			Position:           i,
			ChunkIndex:         i,
		}
	}

	if err := g.store.CreateCards(ctx, cards); err != nil {
		return nil, fmt.Errorf("materialize cards: %w", err)
	}
	return cards, nil
}
