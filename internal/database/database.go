package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"altitude/internal/game"
	"altitude/internal/wallet"
)

// Service is the durable archive: finalized rounds, their wagers and
// every ledger entry. The engine only depends on it through the
// game.Archiver and wallet.Ledger interfaces.
type Service interface {
	Health() map[string]string
	Close() error

	SaveRound(ctx context.Context, round *game.Round) error
	InsertLedgerEntry(ctx context.Context, entry wallet.LedgerEntry) error
	Append(ctx context.Context, entry wallet.LedgerEntry) error
	RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error)
}

// RoundRecord is a finalized round as read back from the archive.
type RoundRecord struct {
	ID              string    `json:"round_id"`
	Seed            string    `json:"seed"`
	Hash            string    `json:"hash"`
	CrashMultiplier float64   `json:"crash_multiplier"`
	PeakMultiplier  float64   `json:"peak_multiplier"`
	TotalWagered    float64   `json:"total_wagered"`
	TotalPaidOut    float64   `json:"total_paid_out"`
	Winners         int       `json:"winners"`
	Losers          int       `json:"losers"`
	HouseProfit     float64   `json:"house_profit"`
	CreatedAt       time.Time `json:"created_at"`
	CrashedAt       time.Time `json:"crashed_at"`
}

type service struct {
	db *sql.DB
}

var (
	database   = os.Getenv("ALTITUDE_DB_DATABASE")
	password   = os.Getenv("ALTITUDE_DB_PASSWORD")
	username   = os.Getenv("ALTITUDE_DB_USERNAME")
	port       = os.Getenv("ALTITUDE_DB_PORT")
	host       = os.Getenv("ALTITUDE_DB_HOST")
	schema     = os.Getenv("ALTITUDE_DB_SCHEMA")
	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatal(err)
	}

	dbInstance = &service{db: db}
	return dbInstance
}

// Health reports connectivity and pool statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] Disconnected from database: %s", database)
	return s.db.Close()
}

// SaveRound persists a finalized round and all of its wagers in one
// transaction.
func (s *service) SaveRound(ctx context.Context, round *game.Round) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (
			id, status, seed, hash, crash_multiplier, peak_multiplier,
			total_wagered, total_paid_out, winners, losers, house_profit,
			created_at, activated_at, crashed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		round.ID, string(round.Status), round.Seed, round.Hash,
		round.CrashMultiplier, round.PeakMultiplier,
		round.Aggregates.TotalWagered, round.Aggregates.TotalPaidOut,
		round.Aggregates.Winners, round.Aggregates.Losers, round.Aggregates.HouseProfit,
		round.CreatedAt, round.ActivatedAt, round.CrashedAt,
	)
	if err != nil {
		return fmt.Errorf("insert round %s: %w", round.ID, err)
	}

	for _, w := range round.Wagers {
		var (
			settledAt       *time.Time
			multiplier      *float64
			convertedPayout *float64
			referencePayout *float64
			won             *bool
		)
		if w.Settlement != nil {
			settledAt = &w.Settlement.SettledAt
			multiplier = &w.Settlement.Multiplier
			convertedPayout = &w.Settlement.ConvertedPayout
			referencePayout = &w.Settlement.ReferencePayout
			won = &w.Settlement.Won
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO wagers (
				id, round_id, participant_id, stake, currency, rate,
				converted_amount, placed_at, settled_at, multiplier,
				converted_payout, reference_payout, won
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			w.ID, w.RoundID, w.ParticipantID, w.Stake, w.Currency, w.Rate,
			w.ConvertedAmount, w.PlacedAt, settledAt, multiplier,
			convertedPayout, referencePayout, won,
		)
		if err != nil {
			return fmt.Errorf("insert wager %s: %w", w.ID, err)
		}
	}

	return tx.Commit()
}

// InsertLedgerEntry appends one audit record. Implements wallet.Ledger
// via Append.
func (s *service) InsertLedgerEntry(ctx context.Context, entry wallet.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, participant_id, currency, type, amount,
			balance_before, balance_after, round_id, wager_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.ParticipantID, entry.Currency, string(entry.Type),
		entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
		nullable(entry.RoundID), nullable(entry.WagerID), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", entry.ID, err)
	}
	return nil
}

// Append satisfies wallet.Ledger.
func (s *service) Append(ctx context.Context, entry wallet.LedgerEntry) error {
	return s.InsertLedgerEntry(ctx, entry)
}

// RecentRounds lists finalized rounds, newest first.
func (s *service) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seed, hash, crash_multiplier, peak_multiplier,
		       total_wagered, total_paid_out, winners, losers, house_profit,
		       created_at, crashed_at
		FROM rounds
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var r RoundRecord
		if err := rows.Scan(
			&r.ID, &r.Seed, &r.Hash, &r.CrashMultiplier, &r.PeakMultiplier,
			&r.TotalWagered, &r.TotalPaidOut, &r.Winners, &r.Losers, &r.HouseProfit,
			&r.CreatedAt, &r.CrashedAt,
		); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
