package repository

import (
	"strings"
	"sync"
	"testing"

	"advisor-marketplace/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestSessionIndexDDLCoversBothParticipants(t *testing.T) {
	joined := strings.Join(sessionIndexDDL, "\n")
	assert.Contains(t, joined, "ux_sessions_client_open ON sessions (client_id)")
	assert.Contains(t, joined, "ux_sessions_advisor_open ON sessions (advisor_id)")

	for _, ddl := range sessionIndexDDL {
		assert.Contains(t, ddl, "CREATE UNIQUE INDEX IF NOT EXISTS")
		assert.Contains(t, ddl, "WHERE status IN ('pending', 'active')")
		// A truncated predicate leaves an unbalanced quote.
		assert.Zero(t, strings.Count(ddl, "'")%2, "unbalanced quotes in %q", ddl)
	}
}

func TestSessionModelIndexTagsParseComplete(t *testing.T) {
	parsed, err := schema.Parse(&models.Session{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	// gorm splits index-tag settings on commas, so a where clause holding
	// a comma-separated status list silently loses everything after the
	// first comma and the generated DDL no longer parses.
	for _, idx := range parsed.ParseIndexes() {
		assert.Zero(t, strings.Count(idx.Where, "'")%2,
			"index %s carries a truncated predicate: %q", idx.Name, idx.Where)
	}
}
