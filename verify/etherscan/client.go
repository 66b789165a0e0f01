// Package etherscan submits contract source code to Etherscan compatible explorers for
// verification.
package etherscan

import (
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

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ans-sigalas/simplestorage/pkg/logger"
)

const (
	// DefaultPollAttempts is how many times the verification status is checked before giving up.
	DefaultPollAttempts = 20
	// DefaultPollDelay is the delay between verification status checks.
	DefaultPollDelay = 5 * time.Second

	requestTimeout = 30 * time.Second
	redacted       = "<REDACTED>"

	statusOK = "1"
)

var (
	// ErrAlreadyVerified is returned when the explorer reports the contract as verified already.
	ErrAlreadyVerified = errors.New("contract source code already verified")
	// ErrVerificationFailed is returned when the explorer rejects the submitted source code.
	ErrVerificationFailed = errors.New("contract verification failed")

	errPending = errors.New("verification pending")
)

// Status is the outcome of a successful Verify call.
type Status string

const (
	// StatusVerified means the source code was submitted and accepted.
	StatusVerified Status = "verified"
	// StatusAlreadyVerified means the explorer had the source code before this call.
	StatusAlreadyVerified Status = "already verified"
)

// IsAlreadyVerified reports whether err means the contract was verified before. Explorers word
// this differently, so any error mentioning "already verified" counts.
func IsAlreadyVerified(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrAlreadyVerified) ||
		strings.Contains(strings.ToLower(err.Error()), "already verified")
}

// APIResponse is the envelope of every Etherscan API response.
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// resultString returns the result field when it is a JSON string.
func (r APIResponse) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return string(r.Result)
	}

	return s
}

// Client talks to a single Etherscan compatible API endpoint.
type Client struct {
	baseURL      string
	apiKey       string
	chainID      uint64
	httpClient   *http.Client
	lggr         logger.Logger
	pollAttempts uint
	pollDelay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPolling sets how the verification status is polled. The status is checked at least once,
// an attempts of 0 counts as 1.
func WithPolling(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.pollAttempts = max(attempts, 1)
		c.pollDelay = delay
	}
}

// WithChainID adds the chainid parameter to every request. Required by multichain endpoints.
func WithChainID(chainID uint64) Option {
	return func(c *Client) {
		c.chainID = chainID
	}
}

// NewClient creates a client for the API at baseURL, for example https://api-goerli.etherscan.io/api.
func NewClient(lggr logger.Logger, baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("etherscan API key is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid etherscan URL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		lggr:         lggr,
		pollAttempts: DefaultPollAttempts,
		pollDelay:    DefaultPollDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// IsVerified reports whether the explorer has verified source code for address.
func (c *Client) IsVerified(ctx context.Context, address common.Address) (bool, error) {
	resp, err := c.get(ctx, url.Values{
		"module":  {"contract"},
		"action":  {"getabi"},
		"address": {address.Hex()},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check if %s is verified: %w", address.Hex(), err)
	}

	return resp.Status == statusOK, nil
}

// VerifyRequest describes the source code submitted for a deployed contract.
type VerifyRequest struct {
	Address      common.Address
	ContractName string
	SourceCode   string
	// CompilerVersion is the full solc version, for example v0.8.8+commit.dddeac2f.
	CompilerVersion string
	// OptimizerRuns is the number of optimizer runs. Zero means the optimizer was disabled.
	OptimizerRuns uint64
	// ConstructorArgs is the hex encoded ABI encoding of the constructor arguments, if any.
	ConstructorArgs string
}

func (r VerifyRequest) validate() error {
	if r.Address == (common.Address{}) {
		return errors.New("contract address is required")
	}
	if r.ContractName == "" {
		return errors.New("contract name is required")
	}
	if strings.TrimSpace(r.SourceCode) == "" {
		return errors.New("source code is required")
	}

	return ValidateCompilerVersion(r.CompilerVersion)
}

// VerifySourceCode submits the source code and returns the GUID used to check the status.
func (c *Client) VerifySourceCode(ctx context.Context, req VerifyRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", fmt.Errorf("invalid verify request: %w", err)
	}

	optimizationUsed := "0"
	if req.OptimizerRuns > 0 {
		optimizationUsed = "1"
	}

	form := url.Values{
		"module":           {"contract"},
		"action":           {"verifysourcecode"},
		"contractaddress":  {req.Address.Hex()},
		"sourceCode":       {req.SourceCode},
		"codeformat":       {"solidity-single-file"},
		"contractname":     {req.ContractName},
		"compilerversion":  {req.CompilerVersion},
		"optimizationUsed": {optimizationUsed},
		"runs":             {strconv.FormatUint(req.OptimizerRuns, 10)},
		// The misspelling is part of the Etherscan API.
		"constructorArguements": {strings.TrimPrefix(req.ConstructorArgs, "0x")},
	}

	resp, err := c.post(ctx, form)
	if err != nil {
		return "", fmt.Errorf("failed to submit source code: %w", err)
	}

	result := resp.resultString()
	if resp.Status != statusOK {
		if IsAlreadyVerified(errors.New(result)) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyVerified, result)
		}

		return "", fmt.Errorf("%w: %s: %s", ErrVerificationFailed, resp.Message, result)
	}

	return result, nil
}

// CheckStatus polls the verification status of guid until the explorer reports a final result.
func (c *Client) CheckStatus(ctx context.Context, guid string) error {
	return retry.Do(func() error {
		resp, err := c.get(ctx, url.Values{
			"module": {"contract"},
			"action": {"checkverifystatus"},
			"guid":   {guid},
		})
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to check verification status: %w", err))
		}

		result := resp.resultString()
		switch {
		case strings.Contains(strings.ToLower(result), "pending"):
			c.lggr.Debugf("Verification %s pending: %s", guid, result)

			return errPending
		case IsAlreadyVerified(errors.New(result)):
			return retry.Unrecoverable(fmt.Errorf("%w: %s", ErrAlreadyVerified, result))
		case resp.Status == statusOK:
			return nil
		default:
			return retry.Unrecoverable(fmt.Errorf("%w: %s", ErrVerificationFailed, result))
		}
	},
		retry.Context(ctx),
		retry.Attempts(c.pollAttempts),
		retry.Delay(c.pollDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errPending) }),
	)
}

// Verify checks whether the contract is verified and otherwise submits the source code and waits
// for the result. A contract that is already verified is treated as success.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (Status, error) {
	lggr := c.lggr.Named("verify")

	verified, err := c.IsVerified(ctx, req.Address)
	if err != nil {
		return "", err
	}
	if verified {
		lggr.Infow("Already Verified!", "address", req.Address.Hex())

		return StatusAlreadyVerified, nil
	}

	lggr.Infow("Verifying contract...", "address", req.Address.Hex(), "contract", req.ContractName,
		"compiler", req.CompilerVersion, "optimizerRuns", req.OptimizerRuns)

	guid, err := c.VerifySourceCode(ctx, req)
	if err == nil {
		lggr.Infow("Source code submitted", "guid", guid)
		err = c.CheckStatus(ctx, guid)
	}

	switch {
	case err == nil:
		lggr.Infow("Contract verified", "address", req.Address.Hex())

		return StatusVerified, nil
	case IsAlreadyVerified(err):
		lggr.Infow("Already Verified!", "address", req.Address.Hex())

		return StatusAlreadyVerified, nil
	default:
		return "", fmt.Errorf("failed to verify %s: %w", req.Address.Hex(), err)
	}
}

func (c *Client) get(ctx context.Context, params url.Values) (*APIResponse, error) {
	params = c.withAuth(params)
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, params)
}

func (c *Client) post(ctx context.Context, form url.Values) (*APIResponse, error) {
	form = c.withAuth(form)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, form)
}

func (c *Client) do(req *http.Request, params url.Values) (*APIResponse, error) {
	req.Header.Set("Accept", "application/json")
	c.lggr.Debugf("Etherscan %s %s?%s", req.Method, c.baseURL, redactParams(params))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan API returned status %d: %s", resp.StatusCode, string(body))
	}

	var data APIResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse etherscan response: %w", err)
	}

	return &data, nil
}

func (c *Client) withAuth(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = v
	}
	out.Set("apikey", c.apiKey)
	if c.chainID != 0 {
		out.Set("chainid", strconv.FormatUint(c.chainID, 10))
	}

	return out
}

// redactParams encodes params for logging with the API key masked and the source code elided.
func redactParams(params url.Values) string {
	out := url.Values{}
	for k, v := range params {
		out[k] = v
	}
	if out.Has("apikey") {
		out.Set("apikey", redacted)
	}
	if out.Has("sourceCode") {
		out.Set("sourceCode", fmt.Sprintf("<%d bytes>", len(out.Get("sourceCode"))))
	}

	return out.Encode()
}
