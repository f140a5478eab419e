package ethereum

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/mint"
)

// mintABI 是铸造合约的最小接口:mintTo(address,string)。
const mintABI = `[{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"string","name":"tokenURI","type":"string"}],"name":"mintTo","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

// transferTopic 是 ERC-721 Transfer(address,address,uint256) 事件的签名哈希,
// token ID 在第四个 topic 中。
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Config 描述如何连接账本并签名铸造交易。
type Config struct {
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
	ChainID         int64
	ConfirmTimeout  time.Duration
}

// Backend 是客户端依赖的链访问能力,ethclient.Client 满足该接口。
// 抽出接口是为了在不连真实节点的情况下驱动完整流程。
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client 为铸造流水线实现 mint.Ledger:构造并广播铸造交易,
// 轮询回执,从 Transfer 事件里解析 token ID。
type Client struct {
	backend        Backend
	contract       *bind.BoundContract
	auth           *bind.TransactOpts
	confirmTimeout time.Duration
	rpcClient      *gethrpc.Client

	mu      sync.Mutex
	pending map[common.Hash]*coretypes.Transaction
}

var _ mint.Ledger = (*Client)(nil)

// NewClient 连接配置的 RPC 节点并准备好交易签名器。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置账本 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接账本节点失败")
	}
	eth := ethclient.NewClient(rpcClient)

	client, err := newWithBackend(eth, cfg)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	client.rpcClient = rpcClient
	return client, nil
}

// NewClientWithBackend 基于现成的后端构造客户端,测试用。
func NewClientWithBackend(backend Backend, cfg Config) (*Client, error) {
	return newWithBackend(backend, cfg)
}

func newWithBackend(backend Backend, cfg Config) (*Client, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x")
	if keyHex == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置铸造账户私钥")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析铸造账户私钥失败")
	}
	contractAddr := strings.TrimSpace(cfg.ContractAddress)
	if !common.IsHexAddress(contractAddr) {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "铸造合约地址无效")
	}
	if cfg.ChainID <= 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链 ID")
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建交易签名器失败")
	}

	parsedABI, err := abi.JSON(strings.NewReader(mintABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析铸造合约 ABI 失败")
	}

	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}

	return &Client{
		backend:        backend,
		contract:       bind.NewBoundContract(common.HexToAddress(contractAddr), parsedABI, backend, backend, backend),
		auth:           auth,
		confirmTimeout: confirmTimeout,
		pending:        make(map[common.Hash]*coretypes.Transaction),
	}, nil
}

// SubmitMint 构造并广播一笔 mintTo 交易,返回交易哈希。
func (c *Client) SubmitMint(ctx context.Context, requester, contentURI string) (string, error) {
	if !common.IsHexAddress(requester) {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "requester 不是合法的账户地址")
	}
	if strings.TrimSpace(contentURI) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "内容 URI 不能为空")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	originalCtx := c.auth.Context
	c.auth.Context = ctx
	defer func() { c.auth.Context = originalCtx }()

	tx, err := c.contract.Transact(c.auth, "mintTo", common.HexToAddress(requester), contentURI)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintSubmission, err, "广播铸造交易失败")
	}
	c.pending[tx.Hash()] = tx
	return tx.Hash().Hex(), nil
}

// WaitConfirmed 阻塞等待交易回执。回执状态为失败时返回
// MINT_REJECTED,成功时从 Transfer 事件解析 token ID。
func (c *Client) WaitConfirmed(ctx context.Context, txHash string) (string, error) {
	hash := common.HexToHash(txHash)

	c.mu.Lock()
	tx, ok := c.pending[hash]
	c.mu.Unlock()
	if !ok {
		return "", xerrors.New(xerrors.CodeNotFound, "未知的交易哈希: "+txHash)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintSubmission, err, "等待交易确认失败")
	}

	c.mu.Lock()
	delete(c.pending, hash)
	c.mu.Unlock()

	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return "", xerrors.New(xerrors.CodeMintRejected, "账本拒绝了铸造交易: "+txHash)
	}

	tokenID, ok := tokenIDFromLogs(receipt.Logs)
	if !ok {
		return "", xerrors.New(xerrors.CodeMintSubmission, "回执中没有 Transfer 事件")
	}
	return tokenID, nil
}

// tokenIDFromLogs 从回执日志里解析 ERC-721 Transfer 事件携带的 token ID。
func tokenIDFromLogs(logs []*coretypes.Log) (string, bool) {
	for _, entry := range logs {
		if entry == nil || len(entry.Topics) != 4 {
			continue
		}
		if entry.Topics[0] != transferTopic {
			continue
		}
		return entry.Topics[3].Big().String(), true
	}
	return "", false
}

// Close 释放网络连接。
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}
