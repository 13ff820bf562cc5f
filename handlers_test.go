package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"BundleGen/Config"
	"BundleGen/Node"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testKeyHex  = "d42bf368dcc16cfa37bfec8f0529fd908a7049dfa45f651926b5b138450b8817"
	testAddress = "0x8eF4C3785D21f0e3C83E8518cE7fa70f0b00Ba5B"
	testTo      = "0x6Be02d1d3665660d22FF9624b7BE0551ee1Ac91b"

	basicSigned = "0x04f86a01808204d28211d78222ce946be02d1d3665660d22ff9624b7be0551ee1ac91b830f424080c0c001a039a174e7f7ee3d7db72c85820aac2b2e6239825ce0823d515d856c981a6f5562a010681af56a301e6affa1088981b2f20cf7905a55f021b2eec2e445c89a337e0c"
	basicDigest = "0x9984da0614deb5be2ce1be62df7000b8ea93858bb41d764c1e7b0bd959d73037"
	basicHash   = "0xee204c43cfda73b440608783124816eefd10ea04f652657bc8fb7c5ef2285f29"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNode struct {
	err      error
	sent     [][]byte
	receipt  *Node.Receipt
	waitErr  error
	interval time.Duration

	// pending stream
	announce   bool // announce submitted transactions
	subscribed bool
	lateSub    bool // a subscription was opened after a submission
	watch      *fakeWatch
}

type fakeWatch struct {
	node   *fakeNode
	closed bool
}

func (w *fakeWatch) Wait(ctx context.Context, id common.Hash) error {
	for _, raw := range w.node.sent {
		if w.node.announce && crypto.Keccak256Hash(raw) == id {
			return nil
		}
	}
	<-ctx.Done()
	return fmt.Errorf("%w: %v", Node.ErrNotPending, ctx.Err())
}

func (w *fakeWatch) Close() { w.closed = true }

func (n *fakeNode) SubscribePending(context.Context) (Node.PendingWatch, error) {
	if len(n.sent) > 0 {
		n.lateSub = true
	}
	n.subscribed = true
	n.watch = &fakeWatch{node: n}
	return n.watch, nil
}

func (n *fakeNode) Submit(_ context.Context, raw []byte) (common.Hash, error) {
	if n.err != nil {
		return common.Hash{}, n.err
	}
	n.sent = append(n.sent, raw)
	return crypto.Keccak256Hash(raw), nil
}

func (n *fakeNode) WaitMined(_ context.Context, id common.Hash, interval time.Duration) (*Node.Receipt, error) {
	n.interval = interval
	if n.waitErr != nil {
		return nil, n.waitErr
	}
	return n.receipt, nil
}

func testConfig() Config.Config {
	cfg := Config.Default()
	cfg.PrivateKey = testKeyHex
	return cfg
}

func basicRequest() TransactionRequest {
	return TransactionRequest{
		ChainID:          "1",
		Nonce:            "0",
		MaxPriorityFee:   "1234",
		MaxFee:           "4567",
		GasLimit:         "8910",
		RecipientAddress: testTo,
		Amount:           "1000000",
	}
}

func doJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) TransactionResponse {
	t.Helper()
	var resp TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGenerateTransaction(t *testing.T) {
	router := newServer(testConfig(), nil).routes()

	w := doJSON(t, router, "/api/generate-tx", basicRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	require.Equal(t, basicSigned, resp.RawTransaction)
	require.Equal(t, basicHash, resp.TransactionHash)
	require.Equal(t, basicDigest, resp.SigningHash)
	require.Equal(t, testAddress, resp.Sender)
	require.Empty(t, resp.SubmittedHash)

	tx := resp.Transaction
	require.Equal(t, "SetCode", tx.Type)
	require.Equal(t, "1234", tx.MaxPriorityFeePerGas)
	require.Equal(t, "1000000", tx.Value)
	require.Equal(t, "1", tx.V)
	require.Equal(t, "0x", tx.Data)
	require.Empty(t, tx.AccessList)
	require.Empty(t, tx.Authorizations)
}

func TestGenerateTransactionFromAccountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Account.json")
	account := `{"did":"test","mnemonic":"test test test test test test test test test test test junk","public_key":""}`
	require.NoError(t, os.WriteFile(path, []byte(account), 0o600))

	cfg := Config.Default()
	cfg.AccountPath = path
	router := newServer(cfg, nil).routes()

	w := doJSON(t, router, "/api/generate-tx", basicRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", decodeResponse(t, w).Sender)
}

func TestGenerateTransactionWithLists(t *testing.T) {
	router := newServer(testConfig(), nil).routes()

	req := basicRequest()
	req.Data = "0xdeadbeef"
	req.AccessList = []AccessTuple{{
		Address:     testAddress,
		StorageKeys: []string{"0x0000000000000000000000000000000000000000000000000000000000000001"},
	}}
	req.Authorizations = []AuthorizationEntry{{Address: testTo, V: 1, R: "5", S: "0x07"}}

	w := doJSON(t, router, "/api/generate-tx", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tx := decodeResponse(t, w).Transaction
	require.Equal(t, "0xdeadbeef", tx.Data)
	require.Len(t, tx.AccessList, 1)
	require.Equal(t, req.AccessList[0].StorageKeys, tx.AccessList[0].StorageKeys)
	require.Equal(t, []AuthorizationEntry{{Address: testTo, V: 1, R: "0x5", S: "0x7"}}, tx.Authorizations)
}

func TestGenerateTransactionBadRequest(t *testing.T) {
	router := newServer(testConfig(), nil).routes()

	tests := []struct {
		name   string
		mutate func(*TransactionRequest)
		want   string
	}{
		{"missing chain id", func(r *TransactionRequest) { r.ChainID = "" }, "ChainID"},
		{"invalid amount", func(r *TransactionRequest) { r.Amount = "ten" }, "invalid amount"},
		{"digit separators", func(r *TransactionRequest) { r.Amount = "1_000" }, "invalid amount"},
		{"empty hex", func(r *TransactionRequest) { r.Nonce = "0x" }, "invalid nonce"},
		{"octal style", func(r *TransactionRequest) { r.ChainID = "0o17" }, "invalid chain id"},
		{"negative fee", func(r *TransactionRequest) { r.MaxFee = "-1" }, "field overflow"},
		{"nonce overflow", func(r *TransactionRequest) { r.Nonce = "18446744073709551616" }, "field overflow"},
		{"gas overflow", func(r *TransactionRequest) { r.GasLimit = "18446744073709551616" }, "field overflow"},
		{"bad recipient", func(r *TransactionRequest) { r.RecipientAddress = "0x1234" }, "invalid recipient address"},
		{"bad data", func(r *TransactionRequest) { r.Data = "0xabc" }, "invalid data"},
		{"auth r overflow", func(r *TransactionRequest) {
			r.Authorizations = []AuthorizationEntry{{Address: testTo, R: "0x1" + string(bytes.Repeat([]byte("0"), 64)), S: "1"}}
		}, "field overflow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := basicRequest()
			tt.mutate(&req)
			w := doJSON(t, router, "/api/generate-tx", req)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			require.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestGenerateTransactionBadKey(t *testing.T) {
	cfg := Config.Default()
	cfg.PrivateKey = "0x1234"
	router := newServer(cfg, nil).routes()

	w := doJSON(t, router, "/api/generate-tx", basicRequest())
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "signing error")
}

func TestGenerateTransactionSubmit(t *testing.T) {
	number := hexutil.Big(*common.Big2)
	node := &fakeNode{receipt: &Node.Receipt{BlockNumber: &number}}
	router := newServer(testConfig(), node).routes()

	req := basicRequest()
	req.Submit = true
	req.WaitMined = true
	w := doJSON(t, router, "/api/generate-tx", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	require.Equal(t, basicHash, resp.SubmittedHash)
	require.Equal(t, "2", resp.BlockNumber)
	require.Equal(t, [][]byte{common.FromHex(basicSigned)}, node.sent)
	require.Equal(t, time.Second, node.interval)
}

func TestGenerateTransactionSubmitFailures(t *testing.T) {
	req := basicRequest()
	req.Submit = true

	w := doJSON(t, newServer(testConfig(), nil).routes(), "/api/generate-tx", req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	rejecting := &fakeNode{err: errors.New("nonce too low")}
	w = doJSON(t, newServer(testConfig(), rejecting).routes(), "/api/generate-tx", req)
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, w.Body.String(), "nonce too low")

	req.WaitMined = true
	stuck := &fakeNode{waitErr: Node.ErrNotMined}
	w = doJSON(t, newServer(testConfig(), stuck).routes(), "/api/generate-tx", req)
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	require.Contains(t, w.Body.String(), basicHash)
}

func TestDecodeTransaction(t *testing.T) {
	router := newServer(testConfig(), nil).routes()

	w := doJSON(t, router, "/api/decode-tx", DecodeRequest{RawTransaction: basicSigned})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	require.Equal(t, basicHash, resp.TransactionHash)
	require.Equal(t, testAddress, resp.Sender)
	require.Equal(t, testTo, resp.Transaction.To)

	for _, raw := range []string{"0xzz", "0x02c0", basicSigned + "80"} {
		w := doJSON(t, router, "/api/decode-tx", DecodeRequest{RawTransaction: raw})
		require.Equal(t, http.StatusBadRequest, w.Code, raw)
	}
}

func TestHealth(t *testing.T) {
	router := newServer(testConfig(), &fakeNode{}).routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","submission":true}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	router := newServer(testConfig(), nil).routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/generate-tx", nil))
	require.Equal(t, 204, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGenerateTransactionNumberBases(t *testing.T) {
	router := newServer(testConfig(), nil).routes()

	req := basicRequest()
	req.Amount = "0100"
	req.Nonce = "010"
	req.GasLimit = "0x22ce"
	w := doJSON(t, router, "/api/generate-tx", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tx := decodeResponse(t, w).Transaction
	require.Equal(t, "100", tx.Value)
	require.Equal(t, "10", tx.Nonce)
	require.Equal(t, "8910", tx.GasLimit)
}

func TestGenerateTransactionWaitPending(t *testing.T) {
	node := &fakeNode{announce: true}
	cfg := testConfig()
	cfg.WaitTimeout = Config.Duration(time.Second)
	router := newServer(cfg, node).routes()

	req := basicRequest()
	req.Submit = true
	req.WaitPending = true
	w := doJSON(t, router, "/api/generate-tx", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	require.True(t, resp.Pending)
	require.Equal(t, basicHash, resp.SubmittedHash)
	require.True(t, node.subscribed)
	require.False(t, node.lateSub)
	require.True(t, node.watch.closed)
}

func TestGenerateTransactionWaitPendingTimeout(t *testing.T) {
	node := &fakeNode{}
	cfg := testConfig()
	cfg.WaitTimeout = Config.Duration(50 * time.Millisecond)
	router := newServer(cfg, node).routes()

	req := basicRequest()
	req.Submit = true
	req.WaitPending = true
	w := doJSON(t, router, "/api/generate-tx", req)
	require.Equal(t, http.StatusGatewayTimeout, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), basicHash)
	require.True(t, node.watch.closed)
}

func TestSubmitWithoutPendingSkipsSubscription(t *testing.T) {
	node := &fakeNode{}
	router := newServer(testConfig(), node).routes()

	req := basicRequest()
	req.Submit = true
	w := doJSON(t, router, "/api/generate-tx", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.False(t, node.subscribed)
	require.False(t, decodeResponse(t, w).Pending)
}
