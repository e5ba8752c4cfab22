// Package repository is the Postgres implementation of the live session store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/mcdev12/courtside/go/internal/sqlutil"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// matchColumns lists columns returned by match SELECT queries, in scan order.
var matchColumns = []string{
	"id", "date", "team_id", "opponent_name", "location", "match_type",
	"time_registered_s", "current_period", "period_minutes", "total_periods",
	"is_finalized", "locked_by_user_id", "locked_at",
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Repository reads and writes match state in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetMatch loads a match row.
func (r *Repository) GetMatch(ctx context.Context, matchID int64) (*models.Match, error) {
	query, args, err := psq.Select(matchColumns...).
		From("match").
		Where(sq.Eq{"id": matchID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building match query: %w", err)
	}

	var (
		m            models.Match
		opponentName sql.NullString
		location     sql.NullString
		matchType    sql.NullString
		lockedBy     sql.NullInt64
		lockedAt     sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&m.ID,
		&m.Date,
		&m.TeamID,
		&opponentName,
		&location,
		&matchType,
		&m.TimeRegisteredSeconds,
		&m.CurrentPeriod,
		&m.PeriodMinutes,
		&m.TotalPeriods,
		&m.IsFinalized,
		&lockedBy,
		&lockedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errclass.ErrNotFound.WithMessagef("match %d not found", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	m.OpponentName = sqlutil.FromNullString(opponentName, "")
	m.Location = sqlutil.FromNullString(location, "")
	m.MatchType = models.MatchType(sqlutil.FromNullString(matchType, string(models.MatchTypeNormal)))
	m.LockedByUserID = sqlutil.FromNullInt64(lockedBy)
	m.LockedAt = sqlutil.FromSqlTime(lockedAt)
	return &m, nil
}

// UpdateMatch writes the set fields of upd. An empty update is a no-op.
func (r *Repository) UpdateMatch(ctx context.Context, matchID int64, upd models.MatchUpdate) error {
	if upd.IsEmpty() {
		return nil
	}

	qb := psq.Update("match").Where(sq.Eq{"id": matchID})
	if upd.Lock != nil {
		qb = qb.Set("locked_by_user_id", sqlutil.ToNullInt64(upd.Lock.UserID)).
			Set("locked_at", sqlutil.ToSqlTime(upd.Lock.At))
	}
	if upd.IsFinalized != nil {
		qb = qb.Set("is_finalized", *upd.IsFinalized)
	}
	if upd.CurrentPeriod != nil {
		qb = qb.Set("current_period", *upd.CurrentPeriod)
	}
	if upd.PeriodMinutes != nil {
		qb = qb.Set("period_minutes", *upd.PeriodMinutes)
	}
	if upd.TotalPeriods != nil {
		qb = qb.Set("total_periods", *upd.TotalPeriods)
	}
	if upd.TimeRegisteredSeconds != nil {
		qb = qb.Set("time_registered_s", *upd.TimeRegisteredSeconds)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return fmt.Errorf("building match update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(fmt.Errorf("failed to update match: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return errclass.ErrNotFound.WithMessagef("match %d not found", matchID)
	}
	return nil
}

// GetPlaytime returns the saved playtime of every player in a match.
func (r *Repository) GetPlaytime(ctx context.Context, matchID int64) ([]models.PlayerPlaytime, error) {
	query, args, err := psq.Select("player_id", "time_played").
		From("match_player_link").
		Where(sq.Eq{"match_id": matchID}).
		OrderBy("player_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building playtime query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get playtime: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.PlayerPlaytime
	for rows.Next() {
		var p models.PlayerPlaytime
		if err := rows.Scan(&p.PlayerID, &p.TimePlayed); err != nil {
			return nil, fmt.Errorf("failed to scan playtime: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating playtime rows: %w", err)
	}
	return out, nil
}

// SetPlaytime upserts a player's saved playtime for a match.
func (r *Repository) SetPlaytime(ctx context.Context, matchID, playerID int64, seconds int) error {
	query, args, err := psq.Insert("match_player_link").
		Columns("match_id", "player_id", "time_played").
		Values(matchID, playerID, seconds).
		Suffix("ON CONFLICT (match_id, player_id) DO UPDATE SET time_played = EXCLUDED.time_played").
		ToSql()
	if err != nil {
		return fmt.Errorf("building playtime upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classify(fmt.Errorf("failed to set playtime: %w", err))
	}
	return nil
}

// ListPlayersForTeam returns the roster of a team ordered by shirt number.
func (r *Repository) ListPlayersForTeam(ctx context.Context, teamID int64) ([]models.Player, error) {
	query, args, err := psq.Select("p.id", "l.team_id", "p.first_name", "p.last_name", "p.number").
		From("player p").
		Join("team_player_link l ON l.player_id = p.id").
		Where(sq.Eq{"l.team_id": teamID}).
		OrderBy("p.number NULLS LAST", "p.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building roster query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var players []models.Player
	for rows.Next() {
		var (
			p      models.Player
			number sql.NullInt32
		)
		if err := rows.Scan(&p.ID, &p.TeamID, &p.FirstName, &p.LastName, &number); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		p.Number = sqlutil.FromNullInt32(number)
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating player rows: %w", err)
	}
	return players, nil
}

// GetUser loads a user by id.
func (r *Repository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query, args, err := psq.Select("id", "username", "created_at").
		From(`"user"`).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var u models.User
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errclass.ErrNotFound.WithMessagef("user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CreateAction inserts an action and returns its id.
func (r *Repository) CreateAction(ctx context.Context, a models.Action) (int64, error) {
	query, args, err := psq.Insert("action").
		Columns("match_id", "player_id", "is_opponent", "user_id", "timestamp", "x", "y", "period", "action", "result").
		Values(
			a.MatchID,
			sqlutil.ToNullInt64(a.PlayerID),
			a.IsOpponent,
			a.UserID,
			a.Timestamp,
			sqlutil.ToNullFloat64(a.X),
			sqlutil.ToNullFloat64(a.Y),
			a.Period,
			string(a.Action),
			a.Result,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building action insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, classify(fmt.Errorf("failed to create action: %w", err))
	}
	return id, nil
}

// classify maps constraint violations to error classes and passes everything
// else through.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqForeignKeyViolation:
		return errclass.ErrNotFound.WithMessagef("referenced row does not exist: %s", pqErr.Constraint)
	case pqUniqueViolation:
		return errclass.ErrConflict.WithMessagef("duplicate row: %s", pqErr.Constraint)
	}
	return err
}
