package storage

import (
	"database/sql"
	"time"

	"github.com/leka/craftwatch/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func scanNullInt64Ptr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

func scanNullFloat64(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		return &nf.Float64
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanPlayer scans a game player row in playerColumns order
func scanPlayer(row scanner) (*domain.GamePlayer, error) {
	var p domain.GamePlayer
	var homeX, homeY, homeZ sql.NullFloat64
	var homeDim, lastDim sql.NullString
	var lastSeen sql.NullTime
	var lastX, lastY, lastZ sql.NullFloat64

	if err := row.Scan(&p.ID, &p.Name, &homeX, &homeY, &homeZ, &homeDim,
		&lastSeen, &lastX, &lastY, &lastZ, &lastDim); err != nil {
		return nil, err
	}

	p.HomeX = scanNullFloat64(homeX)
	p.HomeY = scanNullFloat64(homeY)
	p.HomeZ = scanNullFloat64(homeZ)
	p.HomeDimension = scanNullString(homeDim)
	p.LastSeen = scanNullTime(lastSeen)
	p.LastSeenX = scanNullFloat64(lastX)
	p.LastSeenY = scanNullFloat64(lastY)
	p.LastSeenZ = scanNullFloat64(lastZ)
	p.LastSeenDimension = scanNullString(lastDim)
	return &p, nil
}

func collectPlayers(rows *sql.Rows) ([]domain.GamePlayer, error) {
	var players []domain.GamePlayer
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// scanUser scans a user row in userColumns order
func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var gamePlayerID sql.NullInt64
	var lastLogin sql.NullTime

	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.IsAdmin, &u.IsApproved, &u.GameName, &gamePlayerID,
		&u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}

	u.GamePlayerID = scanNullInt64Ptr(gamePlayerID)
	u.LastLogin = scanNullTime(lastLogin)
	return &u, nil
}
