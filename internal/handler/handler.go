package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bankflow/internal/service"
	"bankflow/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService *service.AccountService
	intakeService  *service.IntakeService
	queryService   *service.QueryService
	log            *zap.Logger
}

func NewHandler(accountService *service.AccountService, intakeService *service.IntakeService, queryService *service.QueryService, log *zap.Logger) *Handler {
	return &Handler{
		accountService: accountService,
		intakeService:  intakeService,
		queryService:   queryService,
		log:            log.Named("http"),
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// CreateAccountRequest 开户请求
type CreateAccountRequest struct {
	OwnerName      string      `json:"owner_name" binding:"required"`
	InitialBalance json.Number `json:"initial_balance"`
}

// CreateAccount 开户
// POST /accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), req.OwnerName, req.InitialBalance.String())
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Created(c, account)
}

// ListAccounts 账户列表
// GET /accounts?skip=0&limit=100
func (h *Handler) ListAccounts(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		response.ParamError(c, "skip 参数错误")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		response.ParamError(c, "limit 参数错误")
		return
	}

	accounts, err := h.accountService.ListAccounts(c.Request.Context(), skip, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  accounts,
		"skip":  skip,
		"limit": limit,
	})
}

// GetAccount 查询账户
// GET /accounts/:number
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, account)
}

// DeactivateAccount 停用账户
// POST /accounts/:number/deactivate
func (h *Handler) DeactivateAccount(c *gin.Context) {
	account, err := h.accountService.DeactivateAccount(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, account)
}

// ============================================================
// 交易相关接口
// ============================================================

// SubmitTransactionRequest 交易请求
// amount 允许 JSON 数字或数字字符串，合法性由 Intake 判断
type SubmitTransactionRequest struct {
	FromAccount     string      `json:"from_account"`
	ToAccount       string      `json:"to_account"`
	Amount          json.Number `json:"amount"`
	TransactionType string      `json:"transaction_type" binding:"required"`
}

// SubmitTransaction 提交交易
// POST /transactions
//
// 【关键点】返回 202 只代表交易已受理（PENDING），余额变化由消费者异步完成，
// 客户端需要通过 GET /transactions/:id 追踪最终状态
func (h *Handler) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.intakeService.Submit(c.Request.Context(), &service.TransactionRequest{
		RequestID:       c.GetString(RequestIDKey),
		FromAccount:     req.FromAccount,
		ToAccount:       req.ToAccount,
		Amount:          req.Amount.String(),
		TransactionType: req.TransactionType,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Accepted(c, trans)
}

// GetTransaction 查询交易状态
// GET /transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "交易ID参数错误")
		return
	}

	trans, err := h.queryService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, trans)
}

// writeError 把服务层错误映射成 HTTP 状态码和业务码
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidTransactionType),
		errors.Is(err, service.ErrMissingSourceAccount),
		errors.Is(err, service.ErrMissingDestinationAccount),
		errors.Is(err, service.ErrWithdrawAccountMismatch),
		errors.Is(err, service.ErrInvalidOwnerName):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		response.NotFound(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrAccountInactive):
		response.NotFound(c, response.CodeAccountInactive, err.Error())
	case errors.Is(err, service.ErrTransactionNotFound):
		response.NotFound(c, response.CodeTransactionNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
	case errors.Is(err, service.ErrAccountBusy):
		response.Error(c, http.StatusConflict, response.CodeAccountBusy, err.Error())
	case errors.Is(err, service.ErrEventPublish):
		h.log.Error("交易事件发送失败", zap.Error(err), zap.String("request_id", c.GetString(RequestIDKey)))
		response.Error(c, http.StatusInternalServerError, response.CodeEventPublishFailed, service.ErrEventPublish.Error())
	default:
		h.log.Error("请求处理失败", zap.Error(err), zap.String("request_id", c.GetString(RequestIDKey)))
		response.ServerError(c, "服务器内部错误")
	}
}
