// Package client 是 HTTP API 的 Go 客户端，bankctl 基于它实现
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bankflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "http://localhost:8000"

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d (code %d): %s", e.Status, e.Code, e.Message)
}

// IsNotFound 判断错误是否是 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type BankClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBankClient(baseURL string, httpClient *http.Client) *BankClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BankClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *BankClient) CreateAccount(ctx context.Context, ownerName string, initialBalance decimal.Decimal) (*model.Account, error) {
	var account model.Account
	err := c.do(ctx, http.MethodPost, "/accounts", map[string]interface{}{
		"owner_name":      ownerName,
		"initial_balance": initialBalance,
	}, http.StatusCreated, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *BankClient) GetAccount(ctx context.Context, accountNumber string) (*model.Account, error) {
	var account model.Account
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountNumber), nil, http.StatusOK, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *BankClient) ListAccounts(ctx context.Context, skip, limit int) ([]*model.Account, error) {
	query := url.Values{}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))

	var page struct {
		List []*model.Account `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts?"+query.Encode(), nil, http.StatusOK, &page); err != nil {
		return nil, err
	}
	return page.List, nil
}

func (c *BankClient) DeactivateAccount(ctx context.Context, accountNumber string) (*model.Account, error) {
	var account model.Account
	path := "/accounts/" + url.PathEscape(accountNumber) + "/deactivate"
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *BankClient) Deposit(ctx context.Context, toAccount string, amount decimal.Decimal) (*model.Transaction, error) {
	return c.submit(ctx, map[string]interface{}{
		"to_account":       toAccount,
		"amount":           amount,
		"transaction_type": model.TransactionTypeDeposit,
	})
}

func (c *BankClient) Withdraw(ctx context.Context, fromAccount string, amount decimal.Decimal) (*model.Transaction, error) {
	return c.submit(ctx, map[string]interface{}{
		"from_account":     fromAccount,
		"to_account":       fromAccount,
		"amount":           amount,
		"transaction_type": model.TransactionTypeWithdraw,
	})
}

func (c *BankClient) Transfer(ctx context.Context, fromAccount, toAccount string, amount decimal.Decimal) (*model.Transaction, error) {
	return c.submit(ctx, map[string]interface{}{
		"from_account":     fromAccount,
		"to_account":       toAccount,
		"amount":           amount,
		"transaction_type": model.TransactionTypeTransfer,
	})
}

func (c *BankClient) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	path := "/transactions/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &trans); err != nil {
		return nil, err
	}
	return &trans, nil
}

func (c *BankClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

func (c *BankClient) submit(ctx context.Context, body map[string]interface{}) (*model.Transaction, error) {
	var trans model.Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions", body, http.StatusAccepted, &trans); err != nil {
		return nil, err
	}
	return &trans, nil
}

// do 发送请求并解开 {code, message, data} 信封
func (c *BankClient) do(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode != wantStatus {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
