package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	"github.com/ans-sigalas/simplestorage/pkg/logger"
)

const (
	// Default retry configuration for RPC calls
	RPCDefaultRetryAttempts = 1
	RPCDefaultRetryDelay    = 1000 * time.Millisecond
	RPCDefaultRetryTimeout  = 10 * time.Second

	// Default retry configuration for dialing RPC endpoints
	RPCDefaultDialRetryAttempts = 1
	RPCDefaultDialRetryDelay    = 1000 * time.Millisecond
	RPCDefaultDialTimeout       = 10 * time.Second

	// Default timeout for health checks
	RPCDefaultHealthCheckTimeout = 2 * time.Second
)

// RetryConfig controls how often calls and dials are retried against a single endpoint before
// moving on to the next one.
type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// WithRetryConfig overrides the default retry configuration.
func WithRetryConfig(cfg RetryConfig) func(*Client) {
	return func(c *Client) {
		c.RetryConfig = cfg
	}
}

// Client should comply with the OnchainClient interface
var _ OnchainClient = &Client{}

// Client is the connection handle to a node. It wraps a primary ethclient and any number of
// backups. Calls are retried on the primary and then on each backup in turn; the first
// endpoint to succeed becomes the new primary.
type Client struct {
	*ethclient.Client
	Backups     []*ethclient.Client
	RetryConfig RetryConfig
	lggr        logger.Logger
	mu          sync.RWMutex
}

// NewClient dials every URL, keeps the ones that pass a health check and returns a Client using
// the first healthy URL as primary.
func NewClient(ctx context.Context, lggr logger.Logger, urls []string, opts ...func(*Client)) (*Client, error) {
	if len(urls) == 0 {
		return nil, errors.New("no RPC URLs provided, need at least one")
	}

	c := &Client{lggr: lggr, RetryConfig: defaultRetryConfig()}
	for _, opt := range opts {
		opt(c)
	}

	clients := make([]*ethclient.Client, 0, len(urls))
	for i, url := range urls {
		client, err := c.dialWithRetry(ctx, url)
		if err != nil {
			lggr.Warnf("failed to dial RPC %d, trying with the next one: %v", i, err)

			continue
		}
		if err := rpcHealthCheck(ctx, client); err != nil {
			lggr.Warnf("health check failed for RPC %d, trying with the next one: %v", i, err)
			client.Close()

			continue
		}
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, errors.New("no valid RPC clients created")
	}

	c.Client = clients[0]
	c.Backups = clients[1:]

	return c, nil
}

// rpcHealthCheck performs a basic health check on the RPC client by calling eth_blockNumber
func rpcHealthCheck(ctx context.Context, client *ethclient.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, RPCDefaultHealthCheckTimeout)
	defer cancel()

	if _, err := client.BlockNumber(timeoutCtx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// Close closes the primary and every backup connection.
func (c *Client) Close() {
	for _, client := range c.clients() {
		client.Close()
	}
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.retryWithBackups(ctx, "BlockNumber", func(ct context.Context, client *ethclient.Client) error {
		var err error
		number, err = client.BlockNumber(ct)

		return err
	})

	return number, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.retryWithBackups(ctx, "ChainID", func(ct context.Context, client *ethclient.Client) error {
		var err error
		id, err = client.ChainID(ct)

		return err
	})

	return id, err
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.retryWithBackups(ctx, "SendTransaction", func(ct context.Context, client *ethclient.Client) error {
		return client.SendTransaction(ct, tx)
	})
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := c.retryWithBackups(ctx, "CallContract", func(ct context.Context, client *ethclient.Client) error {
		var err error
		result, err = client.CallContract(ct, msg, blockNumber)

		return err
	})

	return result, err
}

func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var code []byte
	err := c.retryWithBackups(ctx, "CodeAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		code, err = client.CodeAt(ct, account, blockNumber)

		return err
	})

	return code, err
}

func (c *Client) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	var count uint64
	err := c.retryWithBackups(ctx, "NonceAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		count, err = client.NonceAt(ct, account, block)

		return err
	})

	return count, err
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.retryWithBackups(ctx, "HeaderByNumber", func(ct context.Context, client *ethclient.Client) error {
		var err error
		header, err = client.HeaderByNumber(ct, number)

		return err
	})

	return header, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var gasPrice *big.Int
	err := c.retryWithBackups(ctx, "SuggestGasPrice", func(ct context.Context, client *ethclient.Client) error {
		var err error
		gasPrice, err = client.SuggestGasPrice(ct)

		return err
	})

	return gasPrice, err
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var gasTipCap *big.Int
	err := c.retryWithBackups(ctx, "SuggestGasTipCap", func(ct context.Context, client *ethclient.Client) error {
		var err error
		gasTipCap, err = client.SuggestGasTipCap(ct)

		return err
	})

	return gasTipCap, err
}

func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	var code []byte
	err := c.retryWithBackups(ctx, "PendingCodeAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		code, err = client.PendingCodeAt(ct, account)

		return err
	})

	return code, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var count uint64
	err := c.retryWithBackups(ctx, "PendingNonceAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		count, err = client.PendingNonceAt(ct, account)

		return err
	})

	return count, err
}

func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.retryWithBackups(ctx, "EstimateGas", func(ct context.Context, client *ethclient.Client) error {
		var err error
		gas, err = client.EstimateGas(ct, call)

		return err
	})

	return gas, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := c.retryWithBackups(ctx, "BalanceAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		balance, err = client.BalanceAt(ct, account, blockNumber)

		return err
	})

	return balance, err
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.retryWithBackups(ctx, "FilterLogs", func(ct context.Context, client *ethclient.Client) error {
		var err error
		logs, err = client.FilterLogs(ct, q)

		return err
	})

	return logs, err
}

func (c *Client) retryWithBackups(ctx context.Context, opName string, op func(context.Context, *ethclient.Client) error) error {
	var err error
	traceID := uuid.New()

	for rpcIndex, client := range c.clients() {
		retryCount := 0
		err2 := retry.Do(func() error {
			timeoutCtx, cancel := ensureTimeout(ctx, c.RetryConfig.Timeout)
			defer cancel()

			err = op(timeoutCtx, client)
			if err != nil {
				c.lggr.Warnf("traceID %q: op %q: client index %d: failed execution - retryable error '%s'",
					traceID.String(), opName, rpcIndex, maybeDataErr(err))

				return err
			}

			c.reorderRPCs(rpcIndex)

			return nil
		},
			retry.Context(ctx),
			retry.Attempts(c.RetryConfig.Attempts),
			retry.Delay(c.RetryConfig.Delay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) { retryCount++ }),
		)
		if err2 == nil {
			if retryCount > 0 {
				c.lggr.Infof("traceID %q: op %q: client index %d: successfully executed after %d retry",
					traceID.String(), opName, rpcIndex, retryCount)
			}

			return nil
		}
		c.lggr.Infof("traceID %q: op %q: client index %d: failed, trying next client", traceID.String(), opName, rpcIndex)
	}

	return errors.Join(err, fmt.Errorf("all RPC clients failed for op %q", opName))
}

func (c *Client) dialWithRetry(ctx context.Context, url string) (*ethclient.Client, error) {
	traceID := uuid.New()
	var client *ethclient.Client
	retryCount := 0
	err := retry.Do(func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.RetryConfig.DialTimeout)
		defer cancel()

		var err error
		c.lggr.Debugf("traceID %q: dialing endpoint", traceID.String())
		client, err = ethclient.DialContext(dialCtx, url)
		if err != nil {
			c.lggr.Warnf("traceID %q: dialing failed - retryable error: %v", traceID.String(), err)

			return err
		}

		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.RetryConfig.DialAttempts),
		retry.Delay(c.RetryConfig.DialDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) { retryCount++ }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial endpoint after retries: %w", err)
	}
	if retryCount > 0 {
		c.lggr.Infof("traceID %q: successfully dialed endpoint after %d retries", traceID.String(), retryCount)
	}

	return client, nil
}

// ensureTimeout keeps the parent deadline when there is one, otherwise applies timeout.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); hasDeadline {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}

// reorderRPCs promotes the backup at rpcIndex-1 to primary. The backups that failed before it
// and the old primary move to the end of the list.
func (c *Client) reorderRPCs(rpcIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rpcIndex < 1 || len(c.Backups) == 0 {
		return
	}

	newPrimaryIndex := rpcIndex - 1
	newPrimary := c.Backups[newPrimaryIndex]

	reordered := make([]*ethclient.Client, 0, len(c.Backups))
	reordered = append(reordered, c.Backups[newPrimaryIndex+1:]...)
	reordered = append(reordered, c.Backups[:newPrimaryIndex]...)
	reordered = append(reordered, c.Client)

	c.Backups = reordered
	c.Client = newPrimary
}

func (c *Client) clients() []*ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]*ethclient.Client{c.Client}, c.Backups...)
}

func maybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
