package crossref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmem/internal/shard"
)

var registry = []Target{
	{ID: "shard_projects", Name: "Projets en cours"},
	{ID: "shard_insights", Name: "Insights et Leçons"},
	{ID: "shard_people", Name: "Personnes et Relations"},
	{ID: "shard_technical", Name: "Technique et Architecture"},
	{ID: "shard_strategy", Name: "Stratégie et Vision"},
}

func TestExtractLocalizedSeePhrase(t *testing.T) {
	refs := Extract("Projet actif: release. Voir shard technical pour l'architecture.",
		"shard_projects", registry)
	assert.Equal(t, []string{"shard_technical"}, refs)
}

func TestExtractEnglishPhrases(t *testing.T) {
	assert.Equal(t, []string{"shard_people"},
		Extract("see shard people for contacts", "shard_projects", registry))
	assert.Equal(t, []string{"shard_strategy"},
		Extract("connect with shard strategy", "shard_projects", registry))
	assert.Equal(t, []string{"shard_technical"},
		Extract("details in shard:technical", "shard_projects", registry))
}

func TestExtractIsCaseAndDiacriticsInsensitive(t *testing.T) {
	assert.Equal(t, []string{"shard_strategy"},
		Extract("VOIR SHARD STRATÉGIE et vision", "shard_projects", registry))
}

func TestExtractCapsAtThreeValidRefs(t *testing.T) {
	content := "voir shard projects, voir shard people, voir shard technical, voir shard strategy"
	refs := Extract(content, "shard_insights", registry)
	assert.Equal(t, []string{"shard_projects", "shard_people", "shard_technical"}, refs)
}

func TestExtractSkipsSelfReferenceAndKeepsScanning(t *testing.T) {
	content := "voir shard technical puis voir shard people"
	refs := Extract(content, "shard_technical", registry)
	assert.Equal(t, []string{"shard_people"}, refs)
}

func TestExtractSelfRefFillsNoSlot(t *testing.T) {
	// Three valid targets after a self-reference: all three survive.
	content := "voir shard insights, voir shard projects, voir shard people, voir shard strategy"
	refs := Extract(content, "shard_insights", registry)
	assert.Equal(t, []string{"shard_projects", "shard_people", "shard_strategy"}, refs)
}

func TestExtractIgnoresUnknownShards(t *testing.T) {
	refs := Extract("voir shard finance et voir shard people", "shard_projects", registry)
	assert.Equal(t, []string{"shard_people"}, refs)
}

func TestExtractDeduplicates(t *testing.T) {
	refs := Extract("voir shard people et encore voir shard people", "shard_projects", registry)
	assert.Equal(t, []string{"shard_people"}, refs)
}

func TestExtractNoPhrasingNoRefs(t *testing.T) {
	assert.Empty(t, Extract("technical people strategy", "shard_projects", registry))
	assert.Empty(t, Extract("", "shard_projects", registry))
}

func TestExtractWordBoundary(t *testing.T) {
	assert.Empty(t, Extract("a shard peoplesoft anecdote", "shard_projects", registry))
}

func TestExtractStrictRejectsSelfReference(t *testing.T) {
	_, err := ExtractStrict("voir shard technical", "shard_technical", registry)
	require.Error(t, err)
	assert.ErrorIs(t, err, shard.ErrInvalidCrossRef)
}

func TestExtractStrictAcceptsValidRefs(t *testing.T) {
	refs, err := ExtractStrict("voir shard people", "shard_projects", registry)
	require.NoError(t, err)
	assert.Equal(t, []string{"shard_people"}, refs)
}

func TestNormalizeStripsDiacritics(t *testing.T) {
	assert.Equal(t, "lecon apprise", Normalize("Leçon Apprise"))
	assert.Equal(t, "strategie", Normalize("Stratégie"))
}
