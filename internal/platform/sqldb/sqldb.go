package sqldb

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/legisgraph/internal/platform/logger"
)

// Open picks the GORM dialect from the DSN: postgres:// and postgresql:// URLs or
// key=value strings containing host= go to Postgres, everything else is a sqlite path
// (":memory:" and "file:" URIs included).
func Open(log *logger.Logger, dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqldb: empty dsn")
	}
	dialect := Dialect(dsn)

	var dialector gorm.Dialector
	switch dialect {
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", dialect, err)
	}
	if log != nil {
		log.Info("sql database opened", "dialect", dialect)
	}
	return db, nil
}

func Dialect(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return "postgres"
	default:
		return "sqlite"
	}
}
