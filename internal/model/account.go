package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 银行账户表
// 余额只由 Applier 通过原子增减修改；账户只会被停用，不会被删除
type Account struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNumber string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"account_number"` // 账号，创建后不可变
	OwnerName     string          `gorm:"type:varchar(100);not null" json:"owner_name"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
