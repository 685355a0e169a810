package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bankflow/internal/config"
	"bankflow/internal/handler"
	"bankflow/internal/infrastructure/mq"
	"bankflow/internal/model"
	"bankflow/internal/repository"
	"bankflow/internal/service"
	"bankflow/internal/testutil"
	"bankflow/pkg/response"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	db      *gorm.DB
	router  *gin.Engine
	kafka   *mocks.SyncProducer
	applier *service.ApplyService
	events  chan []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	kafka := mocks.NewSyncProducer(t, nil)

	producer := mq.NewProducerWithFactory(&config.KafkaConfig{
		Brokers: []string{"mock:9092"},
		Topic:   "bank-transactions",
	}, log, func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		return kafka, nil
	})
	t.Cleanup(func() { _ = producer.Close() })

	h := handler.NewHandler(
		service.NewAccountService(db, log),
		service.NewIntakeService(db, producer, nil, log),
		service.NewQueryService(db),
		log,
	)

	return &testServer{
		t:       t,
		db:      db,
		router:  handler.SetupRouter(h, log),
		kafka:   kafka,
		applier: service.NewApplyService(repository.NewLedgerStore(db), log),
		events:  make(chan []byte, 16),
	}
}

// expectPublish 下一次发送成功，并把消息体交给测试
func (s *testServer) expectPublish() {
	s.kafka.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		s.events <- val
		return nil
	})
}

// applyNext 模拟消费者处理下一条事件
func (s *testServer) applyNext() service.Outcome {
	s.t.Helper()
	select {
	case data := <-s.events:
		event, err := model.DecodeTransactionEvent(data)
		require.NoError(s.t, err)
		outcome, _ := s.applier.Apply(context.Background(), event)
		return outcome
	default:
		s.t.Fatal("no event was published")
		return ""
	}
}

func (s *testServer) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestAccountEndpoints(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/accounts", gin.H{"owner_name": "Ada Lovelace", "initial_balance": 1000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, response.CodeSuccess, env.Code)

	var created model.Account
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created.AccountNumber)
	assert.True(t, created.Balance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, created.IsActive)

	w, env = s.do(http.MethodGet, "/accounts/"+created.AccountNumber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Account
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.AccountNumber, got.AccountNumber)

	w, _ = s.do(http.MethodPost, "/accounts", gin.H{"owner_name": "Grace Hopper", "initial_balance": "25.50"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = s.do(http.MethodGet, "/accounts?skip=0&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		List []model.Account `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.List, 2)

	w, env = s.do(http.MethodPost, "/accounts/"+created.AccountNumber+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.IsActive)

	w, env = s.do(http.MethodPost, "/transactions", gin.H{
		"to_account": created.AccountNumber, "amount": 10, "transaction_type": "DEPOSIT",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeAccountInactive, env.Code)
}

func TestAccountEndpoints_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   int
	}{
		{"missing owner", http.MethodPost, "/accounts", gin.H{"initial_balance": 1}, http.StatusBadRequest, response.CodeParamError},
		{"short owner", http.MethodPost, "/accounts", gin.H{"owner_name": "A"}, http.StatusBadRequest, response.CodeParamError},
		{"negative balance", http.MethodPost, "/accounts", gin.H{"owner_name": "Alan", "initial_balance": -5}, http.StatusBadRequest, response.CodeParamError},
		{"broken json", http.MethodPost, "/accounts", `{"owner_name":`, http.StatusBadRequest, response.CodeParamError},
		{"unknown account", http.MethodGet, "/accounts/ACCNOPE", nil, http.StatusNotFound, response.CodeAccountNotFound},
		{"deactivate unknown", http.MethodPost, "/accounts/ACCNOPE/deactivate", nil, http.StatusNotFound, response.CodeAccountNotFound},
		{"bad limit", http.MethodGet, "/accounts?limit=many", nil, http.StatusBadRequest, response.CodeParamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestTransactionEndpoints_TransferLifecycle(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateAccount(t, s.db, "A", "1000")
	testutil.CreateAccount(t, s.db, "B", "500")

	s.expectPublish()
	w, env := s.do(http.MethodPost, "/transactions", gin.H{
		"from_account": "A", "to_account": "B", "amount": "150", "transaction_type": "TRANSFER",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(handler.RequestIDHeader))

	var accepted model.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, model.TransactionStatusPending, accepted.Status)
	assert.Nil(t, accepted.ProcessedAt)

	path := fmt.Sprintf("/transactions/%d", accepted.ID)
	w, env = s.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var polled model.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &polled))
	assert.Equal(t, model.TransactionStatusPending, polled.Status)

	assert.Equal(t, service.OutcomeCompleted, s.applyNext())

	w, env = s.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &polled))
	assert.Equal(t, model.TransactionStatusCompleted, polled.Status)
	assert.NotNil(t, polled.ProcessedAt)

	assert.True(t, testutil.Balance(t, s.db, "A").Equal(decimal.NewFromInt(850)))
	assert.True(t, testutil.Balance(t, s.db, "B").Equal(decimal.NewFromInt(650)))
}

func TestTransactionEndpoints_Rejections(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateAccount(t, s.db, "A", "100")

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   int
	}{
		{"zero amount", gin.H{"to_account": "A", "amount": 0, "transaction_type": "DEPOSIT"}, http.StatusBadRequest, response.CodeParamError},
		{"negative amount", gin.H{"to_account": "A", "amount": -3, "transaction_type": "DEPOSIT"}, http.StatusBadRequest, response.CodeParamError},
		{"non numeric amount", gin.H{"to_account": "A", "amount": "abc", "transaction_type": "DEPOSIT"}, http.StatusBadRequest, response.CodeParamError},
		{"missing amount", gin.H{"to_account": "A", "transaction_type": "DEPOSIT"}, http.StatusBadRequest, response.CodeParamError},
		{"unknown type", gin.H{"to_account": "A", "amount": 1, "transaction_type": "LOAN"}, http.StatusBadRequest, response.CodeParamError},
		{"missing type", gin.H{"to_account": "A", "amount": 1}, http.StatusBadRequest, response.CodeParamError},
		{"unknown destination", gin.H{"to_account": "Z", "amount": 1, "transaction_type": "DEPOSIT"}, http.StatusNotFound, response.CodeAccountNotFound},
		{"insufficient funds", gin.H{"from_account": "A", "to_account": "A", "amount": 500, "transaction_type": "WITHDRAW"}, http.StatusBadRequest, response.CodeInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}

	var n int64
	require.NoError(t, s.db.Model(&model.Transaction{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestTransactionEndpoints_PublishFailure(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateAccount(t, s.db, "A", "100")

	s.kafka.ExpectSendMessageAndFail(errors.New("leader not available"))
	w, env := s.do(http.MethodPost, "/transactions", gin.H{
		"to_account": "A", "amount": 5, "transaction_type": "DEPOSIT",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, response.CodeEventPublishFailed, env.Code)

	var trans model.Transaction
	require.NoError(t, s.db.First(&trans).Error)
	assert.Equal(t, model.TransactionStatusFailed, trans.Status)

	w, env = s.do(http.MethodGet, fmt.Sprintf("/transactions/%d", trans.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var polled model.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &polled))
	assert.Equal(t, model.TransactionStatusFailed, polled.Status)
}

func TestTransactionEndpoints_Query(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/transactions/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeTransactionNotFound, env.Code)

	w, env = s.do(http.MethodGet, "/transactions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeParamError, env.Code)
}

func TestHealthAndMiddleware(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(handler.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(handler.RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/transactions", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.RequestIDMiddleware(), handler.RecoveryMiddleware(zaptest.NewLogger(t)))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, response.CodeServerError, env.Code)
}
