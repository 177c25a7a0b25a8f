package datastore

import (
	"fmt"
	"net"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// MySQLStore implements Interface on MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// mysqlDSN builds the connection string. Times are stored in UTC so month
// windows computed in any zone compare correctly.
func mysqlDSN(s conf.MySQLSettings) string {
	cfg := gomysql.NewConfig()
	cfg.User = s.Username
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.Host, s.Port)
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to MySQL and migrates the schema.
func (store *MySQLStore) Open() error {
	mc := store.Settings.Database.MySQL
	db, err := gorm.Open(mysql.Open(mysqlDSN(mc)), &gorm.Config{
		Logger: newGormLogger(store.Settings.Database.SlowQueryThreshold),
	})
	if err != nil {
		GetLogger().Error("failed to open MySQL database",
			logger.String("host", mc.Host),
			logger.String("port", mc.Port),
			logger.String("database", mc.Database),
			logger.Error(err))
		return dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open_mysql")
	}

	store.DB = db
	return performAutoMigration(db, "MySQL")
}

// Close closes the MySQL connection
func (store *MySQLStore) Close() error {
	return closeDB(store.DB)
}
