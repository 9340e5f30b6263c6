// Package hive integrates the validator with the Hive ledger: account
// lookups, deposit verification, payout broadcasts and the head block digest
// that seeds challenge salts. All chain access funnels through the Ledger
// interface so nodes can run without chain access in development.
package hive

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	gethRPC "github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

var log = logrus.WithField("prefix", "hive")

// Account is the subset of a ledger account the validator consumes.
type Account struct {
	Name    string
	Balance types.Amount
}

// Transfer is a confirmed on-chain transfer operation.
type Transfer struct {
	From   string
	To     string
	Amount types.Amount
	Memo   string
}

// Ledger abstracts the Hive chain. Absent entities are reported as nil
// results without an error; errors mean the chain could not be consulted.
type Ledger interface {
	// Enabled reports whether real chain access is configured. Callers use
	// this to mark broadcasts as skipped instead of attempting them.
	Enabled() bool
	// GetAccount returns the named account, or nil when it does not exist.
	GetAccount(ctx context.Context, name string) (*Account, error)
	// GetBalance returns the liquid HIVE balance of the named account.
	GetBalance(ctx context.Context, name string) (types.Amount, error)
	// LatestBlockDigest returns the head block ID of the chain.
	LatestBlockDigest(ctx context.Context) (string, error)
	// VerifyTransfer looks up a transaction by ID and returns its first
	// transfer operation, or nil when the transaction is unknown.
	VerifyTransfer(ctx context.Context, txID string) (*Transfer, error)
	// SubmitTransfer broadcasts a transfer from the validator account and
	// returns the transaction ID.
	SubmitTransfer(ctx context.Context, to string, amount types.Amount, memo string) (string, error)
	// BroadcastCustomJSON signs and broadcasts a custom record under the
	// given protocol ID and returns the transaction ID.
	BroadcastCustomJSON(ctx context.Context, id string, payload interface{}) (string, error)
	// IsTopValidator reports whether the named account ranks within the top
	// n consensus validators.
	IsTopValidator(ctx context.Context, name string, n int) (bool, error)
}

// Client implements Ledger over two JSON-RPC endpoints: a hived node for
// reads and an optional wallet daemon holding the validator's keys for
// broadcasts.
type Client struct {
	node    *gethRPC.Client
	wallet  *gethRPC.Client
	account string
}

// NewClient dials the node RPC endpoint and, when walletEndpoint is
// non-empty, the wallet RPC endpoint used for signing.
func NewClient(ctx context.Context, nodeEndpoint, walletEndpoint, validatorAccount string) (*Client, error) {
	if validatorAccount == "" {
		return nil, errors.New("validator account name is required")
	}
	node, err := gethRPC.DialContext(ctx, nodeEndpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "could not dial ledger node %s", nodeEndpoint)
	}
	c := &Client{node: node, account: validatorAccount}
	if walletEndpoint != "" {
		wallet, err := gethRPC.DialContext(ctx, walletEndpoint)
		if err != nil {
			node.Close()
			return nil, errors.Wrapf(err, "could not dial wallet %s", walletEndpoint)
		}
		c.wallet = wallet
	}
	return c, nil
}

// Enabled always reports true for a dialed client.
func (_ *Client) Enabled() bool {
	return true
}

// ValidatorAccount returns the account payouts are drawn from.
func (c *Client) ValidatorAccount() string {
	return c.account
}

// Close tears down the underlying RPC connections.
func (c *Client) Close() {
	c.node.Close()
	if c.wallet != nil {
		c.wallet.Close()
	}
}

func (_ *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(params.PoAConfig().LedgerRPCTimeout) * time.Second
	return context.WithTimeout(ctx, timeout)
}

type condenserAccount struct {
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

// GetAccount returns the named account, or nil when absent.
func (c *Client) GetAccount(ctx context.Context, name string) (*Account, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var accounts []condenserAccount
	if err := c.node.CallContext(ctx, &accounts, "condenser_api.get_accounts", []string{name}); err != nil {
		return nil, errors.Wrapf(err, "could not look up account %s", name)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	balance, err := ParseAssetAmount(accounts[0].Balance)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse balance of %s", name)
	}
	return &Account{Name: accounts[0].Name, Balance: balance}, nil
}

// GetBalance returns the liquid balance of the named account.
func (c *Client) GetBalance(ctx context.Context, name string) (types.Amount, error) {
	account, err := c.GetAccount(ctx, name)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, errors.Errorf("account %s does not exist", name)
	}
	return account.Balance, nil
}

type dynamicGlobalProperties struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            string `json:"time"`
}

func (c *Client) globalProperties(ctx context.Context) (*dynamicGlobalProperties, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	props := &dynamicGlobalProperties{}
	if err := c.node.CallContext(ctx, props, "condenser_api.get_dynamic_global_properties"); err != nil {
		return nil, errors.Wrap(err, "could not fetch global properties")
	}
	return props, nil
}

// LatestBlockDigest returns the head block ID, the entropy anchor for
// challenge salts.
func (c *Client) LatestBlockDigest(ctx context.Context) (string, error) {
	props, err := c.globalProperties(ctx)
	if err != nil {
		return "", err
	}
	if props.HeadBlockID == "" {
		return "", errors.New("node reported empty head block id")
	}
	return props.HeadBlockID, nil
}

type condenserTransaction struct {
	TransactionID string            `json:"transaction_id"`
	Operations    []json.RawMessage `json:"operations"`
}

// VerifyTransfer fetches a transaction and extracts its first transfer
// operation. Unknown transactions yield nil without an error so callers can
// distinguish "no such deposit" from "chain unreachable".
func (c *Client) VerifyTransfer(ctx context.Context, txID string) (*Transfer, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var tx condenserTransaction
	if err := c.node.CallContext(ctx, &tx, "condenser_api.get_transaction", txID); err != nil {
		if isUnknownTransaction(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not fetch transaction %s", txID)
	}
	for _, raw := range tx.Operations {
		var op []json.RawMessage
		if err := json.Unmarshal(raw, &op); err != nil || len(op) != 2 {
			continue
		}
		var opName string
		if err := json.Unmarshal(op[0], &opName); err != nil || opName != "transfer" {
			continue
		}
		var body struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Amount string `json:"amount"`
			Memo   string `json:"memo"`
		}
		if err := json.Unmarshal(op[1], &body); err != nil {
			return nil, errors.Wrapf(err, "malformed transfer operation in %s", txID)
		}
		amount, err := ParseAssetAmount(body.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse transfer amount in %s", txID)
		}
		return &Transfer{From: body.From, To: body.To, Amount: amount, Memo: body.Memo}, nil
	}
	return nil, nil
}

func isUnknownTransaction(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unknown transaction")
}

type signedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// SubmitTransfer broadcasts a signed transfer through the wallet and returns
// its transaction ID. The chain settles whole milli-HIVE only, so amounts
// that truncate to zero are rejected before they reach the wallet.
func (c *Client) SubmitTransfer(ctx context.Context, to string, amount types.Amount, memo string) (string, error) {
	if c.wallet == nil {
		return "", errors.New("wallet endpoint not configured")
	}
	asset := amount.Asset()
	if amount <= 0 || asset == "0.000 HIVE" {
		return "", errors.Errorf("transfer of %s is below ledger precision", amount)
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var tx signedTransaction
	if err := c.wallet.CallContext(ctx, &tx, "transfer", c.account, to, asset, memo, true); err != nil {
		return "", errors.Wrapf(err, "could not broadcast transfer of %s to %s", asset, to)
	}
	return tx.TransactionID, nil
}

const transactionExpiry = 30 * time.Second

// chainTimeLayout is the ISO form hived uses, without a timezone suffix.
const chainTimeLayout = "2006-01-02T15:04:05"

type walletTransaction struct {
	RefBlockNum    uint16          `json:"ref_block_num"`
	RefBlockPrefix uint32          `json:"ref_block_prefix"`
	Expiration     string          `json:"expiration"`
	Operations     [][]interface{} `json:"operations"`
	Extensions     []interface{}   `json:"extensions"`
	Signatures     []string        `json:"signatures"`
}

// BroadcastCustomJSON builds a custom_json transaction anchored at the
// current head block, has the wallet sign it with the validator's posting
// authority and broadcasts it.
func (c *Client) BroadcastCustomJSON(ctx context.Context, id string, payload interface{}) (string, error) {
	if c.wallet == nil {
		return "", errors.New("wallet endpoint not configured")
	}
	props, err := c.globalProperties(ctx)
	if err != nil {
		return "", err
	}
	blockID, err := hex.DecodeString(props.HeadBlockID)
	if err != nil || len(blockID) < 8 {
		return "", errors.Errorf("malformed head block id %q", props.HeadBlockID)
	}
	headTime, err := time.Parse(chainTimeLayout, props.Time)
	if err != nil {
		return "", errors.Wrapf(err, "malformed head block time %q", props.Time)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "could not encode custom record payload")
	}
	op := map[string]interface{}{
		"required_auths":         []string{},
		"required_posting_auths": []string{c.account},
		"id":                     id,
		"json":                   string(body),
	}
	tx := walletTransaction{
		RefBlockNum:    uint16(props.HeadBlockNumber & 0xffff),
		RefBlockPrefix: binary.LittleEndian.Uint32(blockID[4:8]),
		Expiration:     headTime.Add(transactionExpiry).Format(chainTimeLayout),
		Operations:     [][]interface{}{{"custom_json", op}},
		Extensions:     []interface{}{},
		Signatures:     []string{},
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var signed signedTransaction
	if err := c.wallet.CallContext(ctx, &signed, "sign_transaction", tx, true); err != nil {
		return "", errors.Wrapf(err, "could not broadcast custom record %s", id)
	}
	return signed.TransactionID, nil
}

type condenserWitness struct {
	Owner string `json:"owner"`
}

// IsTopValidator reports whether name ranks within the top n witnesses by
// vote.
func (c *Client) IsTopValidator(ctx context.Context, name string, n int) (bool, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var witnesses []condenserWitness
	if err := c.node.CallContext(ctx, &witnesses, "condenser_api.get_witnesses_by_vote", "", n); err != nil {
		return false, errors.Wrap(err, "could not list top validators")
	}
	for _, w := range witnesses {
		if w.Owner == name {
			return true, nil
		}
	}
	return false, nil
}

// ParseAssetAmount converts a chain asset string such as "12.345 HIVE" into
// micro-HIVE.
func ParseAssetAmount(s string) (types.Amount, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, errors.Errorf("malformed asset amount %q", s)
	}
	if fields[1] != "HIVE" {
		return 0, errors.Errorf("unsupported asset symbol %q", fields[1])
	}
	if strings.HasPrefix(fields[0], "-") {
		return 0, errors.Errorf("negative asset amount %q", s)
	}
	parts := strings.SplitN(fields[0], ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, errors.Errorf("malformed asset amount %q", s)
	}
	var frac int64
	if len(parts) == 2 {
		digits := parts[1]
		if digits == "" || len(digits) > 6 {
			return 0, errors.Errorf("unsupported asset precision in %q", s)
		}
		frac, err = strconv.ParseInt(digits+strings.Repeat("0", 6-len(digits)), 10, 64)
		if err != nil {
			return 0, errors.Errorf("malformed asset amount %q", s)
		}
	}
	return types.Amount(whole*int64(types.MicrosPerHive) + frac), nil
}
