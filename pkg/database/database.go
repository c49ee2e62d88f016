package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/models"
)

const defaultTxRetries = 3

// DB wraps a gorm connection or, inside Transaction, a gorm transaction.
type DB struct {
	*gorm.DB
	inTx      bool
	txRetries int
}

type Options struct {
	LogLevel logger.LogLevel
	// TxRetries bounds how often a transaction is retried after lock contention.
	TxRetries int
}

func NewMySQLDB(host, port, user, password, dbname string, opts Options) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return setup(db, opts)
}

// NewSQLiteDB opens a SQLite store. An empty path gives an in-memory database.
// SQLite allows one writer, so the pool is capped at a single connection and
// transactions queue at the pool instead of failing with SQLITE_BUSY.
func NewSQLiteDB(path string, opts Options) (*DB, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return setup(db, opts)
}

func gormConfig(opts Options) *gorm.Config {
	level := opts.LogLevel
	if level == 0 {
		level = logger.Warn
	}
	return &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}
}

func setup(db *gorm.DB, opts Options) (*DB, error) {
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := seed(db); err != nil {
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	retries := opts.TxRetries
	if retries <= 0 {
		retries = defaultTxRetries
	}
	return &DB{DB: db, txRetries: retries}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")

	return db.AutoMigrate(
		&models.User{},
		&models.QueueItem{},
		&models.Vote{},
		&models.Rule{},
		&models.Track{},
		&models.RequestHistory{},
		&models.QueueLock{},
	)
}

// DefaultRules are inserted on first start; existing rows are left alone.
var DefaultRules = []models.Rule{
	{Name: models.RuleExplicitDisallowed, Type: models.RuleTypeContent, Value: "true", Description: "Explicit tracks are not allowed"},
	{Name: models.RuleMaxLengthMs, Type: models.RuleTypeContent, Value: "600000", Description: "Tracks longer than 10 minutes are not allowed"},
	{Name: models.RuleVoteThreshold, Type: models.RuleTypeVoting, Value: "0.6", Description: "Tracks are skipped once 60% of votes are downvotes"},
	{Name: models.RuleMinimumVotes, Type: models.RuleTypeVoting, Value: "5", Description: "At least 5 votes are needed before a track can be skipped"},
	{Name: models.RuleRequestCooldown, Type: models.RuleTypeRequest, Value: "600000", Description: "Patrons must wait 10 minutes between requests"},
}

func seed(db *gorm.DB) error {
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.QueueLock{ID: 1}).Error; err != nil {
		return err
	}
	rules := make([]models.Rule, len(DefaultRules))
	copy(rules, DefaultRules)
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rules).Error
}

// Transaction runs fn in a single database transaction. Lock contention
// (deadlocks, lock wait timeouts, busy SQLite) restarts the whole transaction
// up to the configured retry budget, after which apperr.ErrConflict is
// returned. Calls made on a DB that is already a transaction join it.
func (db *DB) Transaction(ctx context.Context, fn func(tx *DB) error) error {
	if db.inTx {
		return fn(db)
	}

	var err error
	for attempt := 0; attempt <= db.txRetries; attempt++ {
		err = db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&DB{DB: tx, inTx: true, txRetries: db.txRetries})
		})
		if err == nil || !isContention(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying contended transaction")
	}
	return fmt.Errorf("transaction gave up after %d retries: %w (%v)", db.txRetries, apperr.ErrConflict, err)
}

func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

func isContention(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		// 1213: deadlock found, 1205: lock wait timeout exceeded
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func lockRow() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}
