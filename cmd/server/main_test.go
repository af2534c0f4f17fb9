package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordisle/lexiforge/internal/config"
)

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# header\n\nCafé\nBank\nnaïve\n"), 0o644))

	words, err := loadVocabulary(config.VocabularyConfig{Path: path, Language: "en"})
	require.NoError(t, err)
	require.Len(t, words, 3)

	// Normalized forms must match what the resolver produces for
	// queries, or exact lookups can never hit.
	assert.Equal(t, "Café", words[0].Text)
	assert.Equal(t, "cafe", words[0].Normalized)
	assert.Equal(t, "bank", words[1].Normalized)
	assert.Equal(t, "naive", words[2].Normalized)
	for _, w := range words {
		assert.Equal(t, "en", w.Language)
	}
}

func TestLoadVocabulary_MissingFile(t *testing.T) {
	_, err := loadVocabulary(config.VocabularyConfig{Path: filepath.Join(t.TempDir(), "absent.txt")})
	require.Error(t, err)
}
