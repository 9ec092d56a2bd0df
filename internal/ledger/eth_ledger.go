package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"chiprails/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthLedger talks to the deployed chips token contract. The engine's own
// account doubles as the custody account: Pull is a transferFrom into it,
// Push is a transfer out of it.
type EthLedger struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	abi       abi.ABI
	custody   common.Address
	chainID   *big.Int
	transacts *bind.TransactOpts
}

type EthLedgerConfig struct {
	RPCURL        string
	PrivateKeyHex string
	ContractChips string
}

func NewEthLedger(ctx context.Context, cfg EthLedgerConfig) (*EthLedger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.ContractChips == "" {
		return nil, fmt.Errorf("chips contract address is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for custody transfers")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(contracts.ChipsABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractChips)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.Context = ctx
	txOpts.GasLimit = 0 // let node estimate
	txOpts.GasPrice = nil
	txOpts.Nonce = nil

	return &EthLedger{
		client:    cli,
		contract:  bound,
		abi:       parsedABI,
		custody:   crypto.PubkeyToAddress(pk.PublicKey),
		chainID:   chainID,
		transacts: txOpts,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// CustodyAddress is the on-chain account holding escrowed chips.
func (c *EthLedger) CustodyAddress() string {
	return c.custody.Hex()
}

func (c *EthLedger) Pull(ctx context.Context, from string, amount *big.Int) error {
	if !common.IsHexAddress(from) {
		return fmt.Errorf("invalid player address %q", from)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	opts := *c.transacts
	opts.Context = ctx

	_, err := c.contract.Transact(&opts, "transferFrom", common.HexToAddress(from), c.custody, amount)
	if err != nil {
		return classifyTransferErr(fmt.Errorf("transferFrom tx: %w", err))
	}
	return nil
}

func (c *EthLedger) Push(ctx context.Context, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if !common.IsHexAddress(to) {
		return fmt.Errorf("invalid payout address %q", to)
	}

	opts := *c.transacts
	opts.Context = ctx

	_, err := c.contract.Transact(&opts, "transfer", common.HexToAddress(to), amount)
	if err != nil {
		return classifyTransferErr(fmt.Errorf("transfer tx: %w", err))
	}
	return nil
}

func (c *EthLedger) BalanceOf(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "balanceOf", common.HexToAddress(addr)); err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *EthLedger) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	if !common.IsHexAddress(owner) || !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("invalid address pair %q/%q", owner, spender)
	}
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "allowance", common.HexToAddress(owner), common.HexToAddress(spender)); err != nil {
		return nil, fmt.Errorf("allowance call: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *EthLedger) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

// classifyTransferErr maps node revert strings onto the adapter's sentinel
// errors so the engine sees the same taxonomy from fake and real ledgers.
func classifyTransferErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient allowance"):
		return fmt.Errorf("%w: %v", ErrInsufficientAllowance, err)
	case strings.Contains(msg, "transfer amount exceeds balance"), strings.Contains(msg, "insufficient balance"):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	default:
		return err
	}
}
