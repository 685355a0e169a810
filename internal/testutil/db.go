// Package testutil 提供测试用的 SQLite 账本库和账户夹具
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"bankflow/internal/infrastructure/database"
	"bankflow/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试一个独立的 SQLite 文件，已完成迁移
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// SQLite 单写者，单连接避免 database is locked
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// CreateAccount 直接写入一个账户
func CreateAccount(t testing.TB, db *gorm.DB, number, balance string) *model.Account {
	t.Helper()

	account := &model.Account{
		AccountNumber: number,
		OwnerName:     "Owner " + number,
		Balance:       decimal.RequireFromString(balance),
		IsActive:      true,
	}
	if err := db.WithContext(context.Background()).Create(account).Error; err != nil {
		t.Fatalf("create account %s: %v", number, err)
	}
	return account
}

// Balance 读取账户当前余额
func Balance(t testing.TB, db *gorm.DB, number string) decimal.Decimal {
	t.Helper()

	var account model.Account
	if err := db.Where("account_number = ?", number).First(&account).Error; err != nil {
		t.Fatalf("load account %s: %v", number, err)
	}
	return account.Balance
}

// Transaction 读取交易行
func Transaction(t testing.TB, db *gorm.DB, id int64) *model.Transaction {
	t.Helper()

	var trans model.Transaction
	if err := db.Where("id = ?", id).First(&trans).Error; err != nil {
		t.Fatalf("load transaction %d: %v", id, err)
	}
	return &trans
}
