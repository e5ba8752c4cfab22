package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaStatementsCoverStoreTables(t *testing.T) {
	joined := strings.Join(schemaStatements, "\n")
	for _, table := range []string{`"user"`, "team", "player", "team_player_link", "match", "match_player_link", "action"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	for _, stmt := range schemaStatements {
		assert.True(t, strings.HasPrefix(stmt, "CREATE "), stmt)
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
}

func TestDemoData(t *testing.T) {
	require.NotEmpty(t, demo.Users)
	seen := make(map[string]bool)
	for _, p := range demo.Players {
		key := p.FirstName + " " + p.LastName
		assert.False(t, seen[key], "duplicate player %s", key)
		seen[key] = true
	}
}
