package testutil

import (
	"os"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MySQL 连接 TEST_MYSQL_DSN 指向的真实数据库并执行迁移，未设置时跳过测试。
// 连接池不限制为单连接，并发测试会真实地争用行锁与间隙锁。
// 数据库在测试之间共享，调用方应使用唯一的 SKU/购物车 ID。
//
//	TEST_MYSQL_DSN='root:pass@tcp(localhost:3306)/storefront_test' go test ./...
func MySQL(tb testing.TB, models ...interface{}) *gorm.DB {
	tb.Helper()

	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		tb.Skip("TEST_MYSQL_DSN not set")
	}
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		tb.Fatalf("parse TEST_MYSQL_DSN: %v", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC

	db, err := gorm.Open(mysql.New(mysql.Config{DSN: cfg.FormatDSN(), DSNConfig: cfg}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		tb.Fatalf("open mysql: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(32)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			tb.Fatalf("auto migrate: %v", err)
		}
	}
	return db
}
