package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"bankflow/internal/client"
	"bankflow/internal/model"

	"github.com/shopspring/decimal"
)

const usage = `bankctl - 银行账户与交易命令行客户端

用法:
  bankctl [-url URL] <命令> [参数]

命令:
  create-account -name NAME [-balance N]   开户
  account NUMBER                           查询账户
  accounts [-skip N] [-limit N]            账户列表
  deactivate NUMBER                        停用账户
  deposit NUMBER AMOUNT                    存款
  withdraw NUMBER AMOUNT                   取款
  transfer FROM TO AMOUNT                  转账
  transaction ID                           查询交易
  health                                   健康检查
`

type cli struct {
	client   *client.BankClient
	out      io.Writer
	interval time.Duration
	attempts int
	noTrack  bool
}

func main() {
	baseURL := flag.String("url", envOr("BANKFLOW_URL", client.DefaultBaseURL), "服务端地址")
	interval := flag.Duration("track-interval", client.DefaultTrackInterval, "追踪交易的轮询间隔")
	attempts := flag.Int("track-attempts", client.DefaultTrackAttempts, "追踪交易的最大轮询次数")
	noTrack := flag.Bool("no-track", false, "提交交易后不追踪状态")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &cli{
		client:   client.NewBankClient(*baseURL, nil),
		out:      os.Stdout,
		interval: *interval,
		attempts: *attempts,
		noTrack:  *noTrack,
	}
	if err := c.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create-account":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		name := fs.String("name", "", "户主姓名")
		balance := fs.String("balance", "0", "初始余额")
		if err := fs.Parse(args); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(*balance)
		if err != nil {
			return fmt.Errorf("初始余额格式错误: %w", err)
		}
		account, err := c.client.CreateAccount(ctx, *name, amount)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "✓ 开户成功")
		c.printAccount(account)

	case "account":
		if len(args) != 1 {
			return errors.New("用法: account NUMBER")
		}
		account, err := c.client.GetAccount(ctx, args[0])
		if err != nil {
			return err
		}
		c.printAccount(account)

	case "accounts":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		skip := fs.Int("skip", 0, "跳过条数")
		limit := fs.Int("limit", 10, "返回条数")
		if err := fs.Parse(args); err != nil {
			return err
		}
		accounts, err := c.client.ListAccounts(ctx, *skip, *limit)
		if err != nil {
			return err
		}
		c.printAccounts(accounts)

	case "deactivate":
		if len(args) != 1 {
			return errors.New("用法: deactivate NUMBER")
		}
		account, err := c.client.DeactivateAccount(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "✓ 账户已停用")
		c.printAccount(account)

	case "deposit", "withdraw":
		if len(args) != 2 {
			return fmt.Errorf("用法: %s NUMBER AMOUNT", cmd)
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("金额格式错误: %w", err)
		}
		var trans *model.Transaction
		if cmd == "deposit" {
			trans, err = c.client.Deposit(ctx, args[0], amount)
		} else {
			trans, err = c.client.Withdraw(ctx, args[0], amount)
		}
		if err != nil {
			return err
		}
		return c.accepted(ctx, trans)

	case "transfer":
		if len(args) != 3 {
			return errors.New("用法: transfer FROM TO AMOUNT")
		}
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("金额格式错误: %w", err)
		}
		trans, err := c.client.Transfer(ctx, args[0], args[1], amount)
		if err != nil {
			return err
		}
		return c.accepted(ctx, trans)

	case "transaction":
		if len(args) != 1 {
			return errors.New("用法: transaction ID")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("交易ID格式错误: %w", err)
		}
		trans, err := c.client.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		c.printTransaction(trans)

	case "health":
		if err := c.client.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "✓ 服务正常")

	default:
		return fmt.Errorf("未知命令 %q", cmd)
	}
	return nil
}

// accepted 打印受理结果并追踪到终态
func (c *cli) accepted(ctx context.Context, trans *model.Transaction) error {
	fmt.Fprintf(c.out, "✓ 交易已受理: id=%d status=%s\n", trans.ID, trans.Status)
	if c.noTrack {
		return nil
	}

	tracker := client.NewTracker(c.client, c.interval, c.attempts)
	tracker.OnPoll = func(attempt int, t *model.Transaction, err error) {
		if err != nil {
			fmt.Fprintf(c.out, "  [%d] 查询失败: %v\n", attempt, err)
			return
		}
		fmt.Fprintf(c.out, "  [%d] %s\n", attempt, t.Status)
	}

	result, err := tracker.Track(ctx, trans.ID)
	if err != nil {
		return err
	}
	if !result.Settled {
		fmt.Fprintln(c.out, "交易仍在处理中，请稍后用 transaction 命令查询")
		return nil
	}

	switch result.Transaction.Status {
	case model.TransactionStatusCompleted:
		fmt.Fprintln(c.out, "✓ 交易成功")
	case model.TransactionStatusFailed:
		fmt.Fprintln(c.out, "✗ 交易失败")
	}
	return nil
}

func (c *cli) printAccount(a *model.Account) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "账号\t%s\n", a.AccountNumber)
	fmt.Fprintf(w, "户主\t%s\n", a.OwnerName)
	fmt.Fprintf(w, "余额\t%s\n", a.Balance.StringFixed(2))
	fmt.Fprintf(w, "状态\t%s\n", activeLabel(a.IsActive))
	fmt.Fprintf(w, "创建时间\t%s\n", a.CreatedAt.Format(time.RFC3339))
	_ = w.Flush()
}

func (c *cli) printAccounts(accounts []*model.Account) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "账号\t户主\t余额\t状态\t")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", a.AccountNumber, a.OwnerName, a.Balance.StringFixed(2), activeLabel(a.IsActive))
	}
	_ = w.Flush()
	fmt.Fprintf(c.out, "共 %d 个账户\n", len(accounts))
}

func (c *cli) printTransaction(t *model.Transaction) {
	from := "N/A"
	if t.FromAccount != nil {
		from = *t.FromAccount
	}
	processed := "-"
	if t.ProcessedAt != nil {
		processed = t.ProcessedAt.Format(time.RFC3339)
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%d\n", t.ID)
	fmt.Fprintf(w, "类型\t%s\n", t.TransactionType)
	fmt.Fprintf(w, "源账户\t%s\n", from)
	fmt.Fprintf(w, "目标账户\t%s\n", t.ToAccount)
	fmt.Fprintf(w, "金额\t%s\n", t.Amount.StringFixed(2))
	fmt.Fprintf(w, "状态\t%s\n", t.Status)
	fmt.Fprintf(w, "创建时间\t%s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "完成时间\t%s\n", processed)
	_ = w.Flush()
}

func activeLabel(active bool) string {
	if active {
		return "正常"
	}
	return "已停用"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
