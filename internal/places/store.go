package places

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"rentmap.hu/internal/logging"
)

//go:embed schema.sql
var ddl string

const placeColumns = `id, user_id, title, description, address, lat, lng,
	rent_price, utility_cost, common_cost, deposit, room_count, property_type,
	floor, has_elevator, link, images, created_at, updated_at`

// Store persists places in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenStore(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Every connection to :memory: is its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := migrate(ctx, db); err != nil {
		logging.SafeCloseWithLogging(db, logger, "close_places_db")
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return &Store{db: db, logger: logger.With(slog.String("component", "places_store"))}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListByOwner returns the user's places, newest first.
func (s *Store) ListByOwner(ctx context.Context, userID string) ([]Place, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("error listing places: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows, s.logger, "list_places_rows")

	list := make([]Place, 0)
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating places: %w", err)
	}
	return list, nil
}

func (s *Store) Get(ctx context.Context, id string) (Place, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+placeColumns+` FROM places WHERE id = ?`, id)
	p, err := scanPlace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Place{}, ErrNotFound
	}
	return p, err
}

func (s *Store) Create(ctx context.Context, p Place) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO places (`+placeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Description, p.Address, p.Lat, p.Lng,
		nullFloat(p.RentPrice), nullFloat(p.UtilityCost), nullFloat(p.CommonCost), nullFloat(p.Deposit),
		nullInt(p.RoomCount), string(p.PropertyType), nullInt(p.Floor), nullBool(p.HasElevator),
		p.Link, images, p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error inserting place: %w", err)
	}
	return nil
}

// UpdateOwned overwrites the place with p.ID if it belongs to p.UserID. The owner
// check and the write happen in one transaction.
func (s *Store) UpdateOwned(ctx context.Context, p Place) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger, "update_place")

	if err := checkOwner(ctx, tx, p.ID, p.UserID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE places SET
		title = ?, description = ?, address = ?, lat = ?, lng = ?,
		rent_price = ?, utility_cost = ?, common_cost = ?, deposit = ?, room_count = ?,
		property_type = ?, floor = ?, has_elevator = ?, link = ?, images = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Description, p.Address, p.Lat, p.Lng,
		nullFloat(p.RentPrice), nullFloat(p.UtilityCost), nullFloat(p.CommonCost), nullFloat(p.Deposit),
		nullInt(p.RoomCount), string(p.PropertyType), nullInt(p.Floor), nullBool(p.HasElevator),
		p.Link, images, p.UpdatedAt.UnixMilli(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating place: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// DeleteOwned removes the place if it belongs to userID.
func (s *Store) DeleteOwned(ctx context.Context, id, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger, "delete_place")

	if err := checkOwner(ctx, tx, id, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting place: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func checkOwner(ctx context.Context, tx *sql.Tx, id, userID string) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM places WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading place owner: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlace(row rowScanner) (Place, error) {
	var (
		p                              Place
		propertyType, images           string
		rent, utility, common, deposit sql.NullFloat64
		roomCount, floor, hasElevator  sql.NullInt64
		createdAt, updatedAt           int64
	)

	err := row.Scan(
		&p.ID, &p.UserID, &p.Title, &p.Description, &p.Address, &p.Lat, &p.Lng,
		&rent, &utility, &common, &deposit, &roomCount, &propertyType,
		&floor, &hasElevator, &p.Link, &images, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Place{}, err
		}
		return Place{}, fmt.Errorf("error scanning place: %w", err)
	}

	p.RentPrice = floatPtr(rent)
	p.UtilityCost = floatPtr(utility)
	p.CommonCost = floatPtr(common)
	p.Deposit = floatPtr(deposit)
	p.RoomCount = intPtr(roomCount)
	p.Floor = intPtr(floor)
	if hasElevator.Valid {
		v := hasElevator.Int64 != 0
		p.HasElevator = &v
	}
	p.PropertyType = PropertyType(propertyType)
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return Place{}, fmt.Errorf("error decoding images of place %s: %w", p.ID, err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	p.TotalPrice = p.MonthlyTotal()

	return p, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("error encoding images: %w", err)
	}
	return string(b), nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBool(v *bool) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	if *v {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{Int64: 0, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
