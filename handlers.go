package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"BundleGen/Block"
	"BundleGen/Codec"
	"BundleGen/Config"
	"BundleGen/Node"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

// Request and response models
type TransactionRequest struct {
	ChainID          string               `json:"chain_id" binding:"required"`
	Nonce            string               `json:"nonce" binding:"required"`
	MaxPriorityFee   string               `json:"max_priority_fee" binding:"required"`
	MaxFee           string               `json:"max_fee" binding:"required"`
	GasLimit         string               `json:"gas_limit" binding:"required"`
	RecipientAddress string               `json:"recipient_address" binding:"required"`
	Amount           string               `json:"amount" binding:"required"` // String to preserve precision
	Data             string               `json:"data"`                      // Optional hex payload
	AccessList       []AccessTuple        `json:"access_list"`
	Authorizations   []AuthorizationEntry `json:"authorizations"`
	Submit           bool                 `json:"submit"`
	WaitPending      bool                 `json:"wait_pending"`
	WaitMined        bool                 `json:"wait_mined"`
}

type AccessTuple struct {
	Address     string   `json:"address"`
	StorageKeys []string `json:"storage_keys"`
}

type AuthorizationEntry struct {
	Address string `json:"address"`
	V       uint8  `json:"v"`
	R       string `json:"r"`
	S       string `json:"s"`
}

type DecodeRequest struct {
	RawTransaction string `json:"raw_transaction" binding:"required"`
}

type TransactionResponse struct {
	Transaction     *TransactionData `json:"transaction"`
	RawTransaction  string           `json:"raw_transaction"`
	TransactionHash string           `json:"transaction_hash"`
	SigningHash     string           `json:"signing_hash"`
	Sender          string           `json:"sender"`
	SubmittedHash   string           `json:"submitted_hash,omitempty"`
	Pending         bool             `json:"pending,omitempty"`
	BlockNumber     string           `json:"block_number,omitempty"`
}

type TransactionData struct {
	ChainID              string               `json:"chain_id"`
	Nonce                string               `json:"nonce"`
	MaxPriorityFeePerGas string               `json:"max_priority_fee"`
	MaxFeePerGas         string               `json:"max_fee"`
	GasLimit             string               `json:"gas_limit"`
	To                   string               `json:"to"`
	Value                string               `json:"value"`
	Data                 string               `json:"data"`
	AccessList           []AccessTuple        `json:"access_list"`
	Authorizations       []AuthorizationEntry `json:"authorizations"`
	V                    string               `json:"v"`
	R                    string               `json:"r"`
	S                    string               `json:"s"`
	Type                 string               `json:"type"`
}

// backend is the node the service submits to.
type backend interface {
	Node.Submitter
	SubscribePending(ctx context.Context) (Node.PendingWatch, error)
	WaitMined(ctx context.Context, id common.Hash, interval time.Duration) (*Node.Receipt, error)
}

type server struct {
	cfg    Config.Config
	node   backend // nil when submission is disabled
	logger log.Logger

	// serializes access to the signing account
	accountMutex sync.Mutex
}

func newServer(cfg Config.Config, node backend) *server {
	return &server{cfg: cfg, node: node, logger: log.New("module", "api")}
}

func (s *server) routes() *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.POST("/api/generate-tx", s.generateTransaction)
	router.POST("/api/decode-tx", s.decodeTransaction)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "submission": s.node != nil})
	})
	return router
}

// withKey runs fn with the configured signing key and wipes it afterwards.
func (s *server) withKey(fn func(*Block.Key) error) error {
	s.accountMutex.Lock()
	defer s.accountMutex.Unlock()

	if s.cfg.PrivateKey != "" {
		return Block.WithKey(s.cfg.PrivateKey, fn)
	}
	key, err := Block.LoadAccountKey(s.cfg.AccountPath)
	if err != nil {
		return err
	}
	defer key.Close()
	return fn(key)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, Codec.ErrFieldOverflow),
		errors.Is(err, Codec.ErrDecode),
		errors.Is(err, Block.ErrInvalidTx),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, Node.ErrNotMined),
		errors.Is(err, Node.ErrNotPending):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// parseBig reads a decimal integer, or hex when prefixed with 0x.
func parseBig(name, s string) (*big.Int, error) {
	var (
		v  *big.Int
		ok bool
	)
	if digits, isHex := strings.CutPrefix(s, "0x"); isHex {
		v, ok = new(big.Int).SetString(digits, 16)
	} else {
		v, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return v, nil
}

func parseWord(name, s string) (uint256.Int, error) {
	b, err := parseBig(name, s)
	if err != nil {
		return uint256.Int{}, err
	}
	if !Codec.Fits(256, b) {
		return uint256.Int{}, fmt.Errorf("%w: %s exceeds 256 bits", Codec.ErrFieldOverflow, name)
	}
	var w uint256.Int
	w.SetFromBig(b)
	return w, nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, s)
	}
	return common.HexToAddress(s), nil
}

// Convert the request into transaction parameters
func (req *TransactionRequest) params() (Block.TxParams, error) {
	var (
		p   Block.TxParams
		err error
	)
	if p.ChainID, err = parseBig("chain id", req.ChainID); err != nil {
		return p, err
	}
	if p.Nonce, err = parseBig("nonce", req.Nonce); err != nil {
		return p, err
	}
	if p.MaxPriorityFeePerGas, err = parseBig("max priority fee", req.MaxPriorityFee); err != nil {
		return p, err
	}
	if p.MaxFeePerGas, err = parseBig("max fee", req.MaxFee); err != nil {
		return p, err
	}
	if p.GasLimit, err = parseBig("gas limit", req.GasLimit); err != nil {
		return p, err
	}
	if p.Value, err = parseBig("amount", req.Amount); err != nil {
		return p, err
	}
	if p.To, err = parseAddress("recipient address", req.RecipientAddress); err != nil {
		return p, err
	}
	if req.Data != "" {
		if p.Data, err = Codec.DecodeHex(req.Data); err != nil {
			return p, fmt.Errorf("invalid data: %w", err)
		}
	}
	for _, tuple := range req.AccessList {
		addr, err := parseAddress("access list address", tuple.Address)
		if err != nil {
			return p, err
		}
		keys := make([][]byte, len(tuple.StorageKeys))
		for i, key := range tuple.StorageKeys {
			if keys[i], err = Codec.DecodeHex(key); err != nil {
				return p, fmt.Errorf("invalid storage key: %w", err)
			}
		}
		p.AccessList = append(p.AccessList, Block.AccessTuple{Address: addr, StorageKeys: keys})
	}
	for _, entry := range req.Authorizations {
		var auth Block.Authorization
		if auth.Address, err = parseAddress("authorization address", entry.Address); err != nil {
			return p, err
		}
		auth.V = entry.V
		if auth.R, err = parseWord("authorization r", entry.R); err != nil {
			return p, err
		}
		if auth.S, err = parseWord("authorization s", entry.S); err != nil {
			return p, err
		}
		p.Authorizations = append(p.Authorizations, auth)
	}
	return p, nil
}

// Convert Block.SignedTx to TransactionData
func toTransactionData(tx *Block.SignedTx) *TransactionData {
	p := tx.Params()
	sig := tx.Signature()
	result := &TransactionData{
		ChainID:              p.ChainID.String(),
		Nonce:                p.Nonce.String(),
		MaxPriorityFeePerGas: p.MaxPriorityFeePerGas.String(),
		MaxFeePerGas:         p.MaxFeePerGas.String(),
		GasLimit:             p.GasLimit.String(),
		To:                   p.To.Hex(),
		Value:                p.Value.String(),
		Data:                 Codec.EncodeHex(p.Data),
		AccessList:           []AccessTuple{},
		Authorizations:       []AuthorizationEntry{},
		V:                    fmt.Sprint(sig.V),
		R:                    sig.R.Hex(),
		S:                    sig.S.Hex(),
		Type:                 "SetCode",
	}
	for _, tuple := range p.AccessList {
		keys := make([]string, len(tuple.StorageKeys))
		for i, key := range tuple.StorageKeys {
			keys[i] = Codec.EncodeHex(key)
		}
		result.AccessList = append(result.AccessList, AccessTuple{Address: tuple.Address.Hex(), StorageKeys: keys})
	}
	for _, auth := range p.Authorizations {
		result.Authorizations = append(result.Authorizations, AuthorizationEntry{
			Address: auth.Address.Hex(),
			V:       auth.V,
			R:       auth.R.Hex(),
			S:       auth.S.Hex(),
		})
	}
	return result
}

func describe(tx *Block.SignedTx) (*TransactionResponse, []byte, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, nil, err
	}
	digest, err := tx.SigningHash()
	if err != nil {
		return nil, nil, err
	}
	sender, err := tx.Sender()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to recover sender: %w", err)
	}
	return &TransactionResponse{
		Transaction:     toTransactionData(tx),
		RawTransaction:  Codec.EncodeHex(raw),
		TransactionHash: hash.Hex(),
		SigningHash:     digest.Hex(),
		Sender:          sender.Hex(),
	}, raw, nil
}

// Handler for generating transactions
func (s *server) generateTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, err := req.params()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	tx, err := Block.NewUnsignedTx(params)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	var signed *Block.SignedTx
	err = s.withKey(func(key *Block.Key) error {
		var err error
		signed, err = tx.Sign(key)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to sign transaction", "err", err)
		c.JSON(statusFor(err), gin.H{"error": fmt.Sprintf("signing error: %v", err)})
		return
	}

	response, raw, err := describe(signed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("Generated transaction", "hash", response.TransactionHash, "sender", response.Sender,
		"tuples", len(params.AccessList), "keys", params.AccessList.StorageKeys(), "auths", len(params.Authorizations))

	if req.Submit {
		if s.node == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission is disabled: no node configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(s.cfg.WaitTimeout))
		defer cancel()

		var watch Node.PendingWatch
		if req.WaitPending {
			if watch, err = s.node.SubscribePending(ctx); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			defer watch.Close()
		}
		id, err := s.node.Submit(ctx, raw)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if id.Hex() != response.TransactionHash {
			s.logger.Warn("Node returned unexpected transaction hash", "want", response.TransactionHash, "have", id)
		}
		response.SubmittedHash = id.Hex()

		if watch != nil {
			if err := watch.Wait(ctx, id); err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error(), "submitted_hash": response.SubmittedHash})
				return
			}
			response.Pending = true
		}
		if req.WaitMined {
			receipt, err := s.node.WaitMined(ctx, id, time.Duration(s.cfg.PollInterval))
			if err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error(), "submitted_hash": response.SubmittedHash})
				return
			}
			if receipt.BlockNumber != nil {
				response.BlockNumber = receipt.BlockNumber.ToInt().String()
			}
		}
	}
	c.JSON(http.StatusOK, response)
}

// Handler for decoding signed transactions
func (s *server) decodeTransaction(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := Codec.DecodeHex(req.RawTransaction)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	tx, err := Block.DecodeSignedTx(raw)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	response, _, err := describe(tx)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, response)
}
