package service

import "errors"

// 校验错误：Intake 同步拒绝，无副作用
var (
	ErrInvalidAmount             = errors.New("金额必须是大于0的数字")
	ErrInvalidTransactionType    = errors.New("交易类型必须是 DEPOSIT、WITHDRAW 或 TRANSFER")
	ErrMissingSourceAccount      = errors.New("该交易类型必须指定 from_account")
	ErrMissingDestinationAccount = errors.New("必须指定 to_account")
	ErrWithdrawAccountMismatch   = errors.New("取款的 to_account 必须与 from_account 相同")
	ErrInvalidOwnerName          = errors.New("户主姓名长度必须在2到100之间")
)

// 资源错误：Intake 同步拒绝，无副作用
var (
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrAccountInactive     = errors.New("账户已停用")
	ErrInsufficientFunds   = errors.New("余额不足")
	ErrTransactionNotFound = errors.New("交易不存在")
)

// ErrEventPublish 交易已落库但事件追加失败，交易被标记为 FAILED
var ErrEventPublish = errors.New("交易事件发送失败")

// ErrAccountBusy 账户锁等待超时
var ErrAccountBusy = errors.New("账户繁忙，请稍后重试")
