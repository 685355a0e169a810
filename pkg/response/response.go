package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess            = 0
	CodeParamError         = 400
	CodeNotFound           = 404
	CodeConflict           = 409
	CodeServerError        = 500
	CodeServiceUnavailable = 503
	CodeBusinessError      = 1000
)

// 业务错误码
const (
	CodeAccountNotFound     = 1001
	CodeAccountInactive     = 1002
	CodeInsufficientFunds   = 1003
	CodeTransactionNotFound = 1004
	CodeEventPublishFailed  = 1005
	CodeAccountBusy         = 1006
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Accepted 异步受理：请求已记录，结果需要之后查询
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data)
}

func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// BusinessError 业务规则拒绝，HTTP 400
func BusinessError(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}
