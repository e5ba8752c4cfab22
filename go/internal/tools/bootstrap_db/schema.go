package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements creates the live match tables. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS "user" (
		id              BIGSERIAL PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL DEFAULT '',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS team (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS player (
		id         BIGSERIAL PRIMARY KEY,
		number     INTEGER,
		first_name TEXT NOT NULL,
		last_name  TEXT NOT NULL,
		sex        TEXT NOT NULL DEFAULT 'UNKNOWN',
		UNIQUE (first_name, last_name)
	)`,
	`CREATE TABLE IF NOT EXISTS team_player_link (
		team_id   BIGINT NOT NULL REFERENCES team(id) ON DELETE CASCADE,
		player_id BIGINT NOT NULL REFERENCES player(id) ON DELETE CASCADE,
		PRIMARY KEY (team_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS match (
		id                BIGSERIAL PRIMARY KEY,
		date              TIMESTAMPTZ NOT NULL DEFAULT now(),
		team_id           BIGINT NOT NULL REFERENCES team(id),
		opponent_name     TEXT,
		location          TEXT,
		match_type        TEXT DEFAULT 'NORMAL',
		time_registered_s INTEGER NOT NULL DEFAULT 0,
		current_period    INTEGER NOT NULL DEFAULT 1,
		period_minutes    INTEGER NOT NULL DEFAULT 25,
		total_periods     INTEGER NOT NULL DEFAULT 2,
		is_finalized      BOOLEAN NOT NULL DEFAULT FALSE,
		locked_by_user_id BIGINT REFERENCES "user"(id),
		locked_at         TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS match_player_link (
		match_id    BIGINT NOT NULL REFERENCES match(id) ON DELETE CASCADE,
		player_id   BIGINT NOT NULL REFERENCES player(id),
		time_played INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS action (
		id          BIGSERIAL PRIMARY KEY,
		match_id    BIGINT NOT NULL REFERENCES match(id) ON DELETE CASCADE,
		player_id   BIGINT REFERENCES player(id),
		is_opponent BOOLEAN NOT NULL DEFAULT FALSE,
		user_id     BIGINT REFERENCES "user"(id),
		timestamp   INTEGER NOT NULL,
		x           DOUBLE PRECISION,
		y           DOUBLE PRECISION,
		period      INTEGER NOT NULL,
		action      TEXT NOT NULL,
		result      BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS action_match_id_idx ON action (match_id)`,
}

type seedPlayer struct {
	Number    int
	FirstName string
	LastName  string
	Sex       string
}

type seedData struct {
	Team     string
	Opponent string
	Location string
	Users    []string
	Players  []seedPlayer
}

var demo = seedData{
	Team:     "Courtside 1",
	Opponent: "Blauw Wit 1",
	Location: "Sporthal De Scheg",
	Users:    []string{"coach", "assistant", "scout"},
	Players: []seedPlayer{
		{1, "Femke", "de Vries", "FEMALE"},
		{2, "Joost", "Bakker", "MALE"},
		{3, "Lotte", "Visser", "FEMALE"},
		{4, "Daan", "Smit", "MALE"},
		{5, "Sanne", "Mulder", "FEMALE"},
		{6, "Bram", "de Boer", "MALE"},
		{7, "Iris", "Meijer", "FEMALE"},
		{8, "Sem", "Bos", "MALE"},
	},
}

func createSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// seed upserts the demo data and returns the id of the demo match.
func seed(ctx context.Context, pool *pgxpool.Pool, data seedData) (int64, error) {
	var matchID int64
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, name := range data.Users {
			if _, err := tx.Exec(ctx,
				`INSERT INTO "user" (username) VALUES ($1) ON CONFLICT (username) DO NOTHING`, name); err != nil {
				return fmt.Errorf("insert user %s: %w", name, err)
			}
		}

		var teamID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO team (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, data.Team).Scan(&teamID); err != nil {
			return fmt.Errorf("upsert team: %w", err)
		}

		for _, p := range data.Players {
			var playerID int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO player (number, first_name, last_name, sex) VALUES ($1, $2, $3, $4)
				ON CONFLICT (first_name, last_name) DO UPDATE SET number = EXCLUDED.number
				RETURNING id`, p.Number, p.FirstName, p.LastName, p.Sex).Scan(&playerID); err != nil {
				return fmt.Errorf("upsert player %s %s: %w", p.FirstName, p.LastName, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO team_player_link (team_id, player_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				teamID, playerID); err != nil {
				return fmt.Errorf("link player %d: %w", playerID, err)
			}
		}

		err := tx.QueryRow(ctx,
			`SELECT id FROM match WHERE team_id = $1 AND NOT is_finalized ORDER BY id LIMIT 1`, teamID).Scan(&matchID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("find open match: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO match (team_id, opponent_name, location) VALUES ($1, $2, $3)
			RETURNING id`, teamID, data.Opponent, data.Location).Scan(&matchID); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		return nil
	})
	return matchID, err
}
