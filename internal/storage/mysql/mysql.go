// Package mysql stores transfers in MySQL or TiDB through gorm.
package mysql

import (
	"context"
	"fmt"
	"time"

	drv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"token-backfill/internal/logger"
)

// DB wraps gorm.DB for dependency injection.
type DB struct {
	*gorm.DB
}

// Open connects to MySQL, forces UTC time parsing and migrates the schema.
// DSN format: user:password@tcp(host:port)/database
func Open(ctx context.Context, dsn string, log *logger.Logger) (*DB, error) {
	cfg, err := drv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	if log == nil {
		log = logger.Nop()
	}

	db, err := gorm.Open(mysql.Open(cfg.FormatDSN()), &gorm.Config{
		Logger: gormLogger.New(
			zap.NewStdLog(log.Zap()),
			gormLogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&transactionModel{}, &progressModel{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate mysql schema: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
