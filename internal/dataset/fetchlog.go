package dataset

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// FetchLogEntry is one row of the derived, rebuildable fetch-log /
// run-history side table that accompanies the JSON index (see
// SPEC_FULL.md's DOMAIN STACK table). It holds one row per
// put_metadata, attach_media and remove outcome, read back only through
// Store.FetchLogFailureRate; losing this table has no effect on the
// three-way invariant, since the JSON files remain the source of
// truth.
type FetchLogEntry struct {
	ID        uint `gorm:"primarykey"`
	ItemID    string `gorm:"index"`
	Operation string // "put_metadata" | "attach_media" | "remove"
	Result    string
	CreatedAt time.Time
}

// fetchLog wraps the gorm/sqlite handle. Grounded on the teacher's
// internal/infrastructure/persistence/gorm/db.go connection-setup
// pattern (zap-backed gorm logger, NowFunc pinned to UTC), trimmed to
// what a single-process embedded sqlite file needs (no connection
// pool tuning — there is exactly one writer).
type fetchLog struct {
	db     *gorm.DB
	logger *zap.Logger
}

func openFetchLog(path string, logger *zap.Logger) (*fetchLog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(logger, false),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&FetchLogEntry{}); err != nil {
		return nil, err
	}
	return &fetchLog{db: db, logger: logger}, nil
}

func (f *fetchLog) record(itemID, operation, result string) {
	if f == nil {
		return
	}
	entry := FetchLogEntry{ItemID: itemID, Operation: operation, Result: result, CreatedAt: time.Now().UTC()}
	if err := f.db.Create(&entry).Error; err != nil {
		f.logger.Warn("failed to record fetch log entry", zap.String("item_id", itemID), zap.Error(err))
	}
}

// RecentFailureRate reports the fraction of the last n log entries for
// the given operation whose result was not "ok". It is exposed through
// Store.FetchLogFailureRate; the orchestrator's circuit breaker keeps
// its own in-memory window and does not read this table.
func (f *fetchLog) RecentFailureRate(operation string, n int) (float64, error) {
	var entries []FetchLogEntry
	if err := f.db.Where("operation = ?", operation).Order("id desc").Limit(n).Find(&entries).Error; err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	failures := 0
	for _, e := range entries {
		if e.Result != "ok" {
			failures++
		}
	}
	return float64(failures) / float64(len(entries)), nil
}

func (f *fetchLog) Close() error {
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormLoggerAdapter wraps zap for gorm's Logger interface, grounded on
// narwhalmedia-narwhal/internal/infrastructure/persistence/gorm/db.go.
type gormLoggerAdapter struct {
	logger *zap.Logger
	debug  bool
}

func newGormLogger(logger *zap.Logger, debug bool) gormlogger.Interface {
	return &gormLoggerAdapter{logger: logger.Named("gorm"), debug: debug}
}

func (l *gormLoggerAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *gormLoggerAdapter) Info(_ context.Context, msg string, args ...interface{}) {
	l.logger.Sugar().Infof(msg, args...)
}

func (l *gormLoggerAdapter) Warn(_ context.Context, msg string, args ...interface{}) {
	l.logger.Sugar().Warnf(msg, args...)
}

func (l *gormLoggerAdapter) Error(_ context.Context, msg string, args ...interface{}) {
	l.logger.Sugar().Errorf(msg, args...)
}

func (l *gormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if !l.debug {
		return
	}
	sql, rows := fc()
	l.logger.Debug("sql trace",
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", time.Since(begin)),
		zap.Error(err))
}
