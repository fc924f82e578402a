package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stablecore/crypto"
	"stablecore/engine"
	"stablecore/ledger"
	"stablecore/oracle"
	"stablecore/storage"
	"stablecore/token"
)

type testEnv struct {
	server *Server
	router http.Handler
	feed   *oracle.ManualSource
	weth   *token.Bank
	debt   *token.Bank
	module crypto.Address
}

func rpcAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.ActorPrefix, raw)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	module := rpcAddress(0x01)
	feed := oracle.NewManualSource()
	feed.Set("WETH", new(big.Int).Mul(big.NewInt(2_000), big.NewInt(100_000_000)), time.Now())

	weth := token.NewBank("WETH", module)
	debt := token.NewBank("CUSD", module)
	registry, err := engine.NewRegistry([]string{"WETH"}, []oracle.PriceSource{feed}, []token.CollateralToken{weth})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	eng := engine.New(module, registry, debt)
	eng.SetState(ledger.NewStore(storage.NewMemDB()))

	server := NewServer(eng)
	return &testEnv{
		server: server,
		router: server.Router(),
		feed:   feed,
		weth:   weth,
		debt:   debt,
		module: module,
	}
}

func (env *testEnv) call(t *testing.T, body string, header map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func scaled(n int64) string {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)).String()
}

func TestDepositMintAndQueryFlow(t *testing.T) {
	env := newTestEnv(t)
	actor := rpcAddress(0x20)
	env.weth.Mint(actor, new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	_, resp := env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"collateral_deposit","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(10)), nil)
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":2,"method":"debt_mint","params":[{"actor":%q,"amount":%q}]}`,
		actor.String(), scaled(100)), nil)
	if resp.Error != nil {
		t.Fatalf("mint: %+v", resp.Error)
	}

	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":3,"method":"engine_getAccountInfo","params":[{"address":%q}]}`,
		actor.String()), nil)
	if resp.Error != nil {
		t.Fatalf("account info: %+v", resp.Error)
	}
	info, _ := json.Marshal(resp.Result)
	var decoded accountInfoResult
	if err := json.Unmarshal(info, &decoded); err != nil {
		t.Fatalf("decode account info: %v", err)
	}
	if decoded.MintedDebt != scaled(100) {
		t.Fatalf("minted debt = %s, want %s", decoded.MintedDebt, scaled(100))
	}
	if decoded.CollateralValueUSD != scaled(20_000) {
		t.Fatalf("collateral value = %s, want %s", decoded.CollateralValueUSD, scaled(20_000))
	}

	_, resp = env.call(t, `{"jsonrpc":"2.0","id":4,"method":"engine_totals","params":[]}`, nil)
	if resp.Error != nil {
		t.Fatalf("totals: %+v", resp.Error)
	}
	totals, _ := json.Marshal(resp.Result)
	var decodedTotals totalsResult
	if err := json.Unmarshal(totals, &decodedTotals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if decodedTotals.TotalMintedDebt != scaled(100) {
		t.Fatalf("total debt = %s, want %s", decodedTotals.TotalMintedDebt, scaled(100))
	}
}

func TestValuationQueries(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"engine_getUsdValue","params":[{"asset":"WETH","amount":%q}]}`,
		scaled(15)), nil)
	if resp.Error != nil {
		t.Fatalf("usd value: %+v", resp.Error)
	}
	result, _ := json.Marshal(resp.Result)
	var usdValue map[string]string
	_ = json.Unmarshal(result, &usdValue)
	if usdValue["usdValue"] != scaled(30_000) {
		t.Fatalf("usd value = %s, want %s", usdValue["usdValue"], scaled(30_000))
	}

	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":2,"method":"engine_getTokenAmountFromUsd","params":[{"asset":"WETH","amount":%q}]}`,
		scaled(100)), nil)
	if resp.Error != nil {
		t.Fatalf("token amount: %+v", resp.Error)
	}
	result, _ = json.Marshal(resp.Result)
	var tokenAmount map[string]string
	_ = json.Unmarshal(result, &tokenAmount)
	if tokenAmount["tokenAmount"] != "50000000000000000" {
		t.Fatalf("token amount = %s, want 0.05 in base units", tokenAmount["tokenAmount"])
	}
}

func TestCombinedOperationsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	actor := rpcAddress(0x20)
	env.weth.Mint(actor, new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	_, resp := env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"engine_depositAndMint","params":[{"actor":%q,"asset":"WETH","collateralAmount":%q,"debtAmount":%q}]}`,
		actor.String(), scaled(10), scaled(5_000)), nil)
	if resp.Error != nil {
		t.Fatalf("deposit and mint: %+v", resp.Error)
	}

	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":2,"method":"engine_getHealthFactor","params":[{"address":%q}]}`,
		actor.String()), nil)
	if resp.Error != nil {
		t.Fatalf("health factor: %+v", resp.Error)
	}

	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":3,"method":"engine_redeemAndBurn","params":[{"actor":%q,"asset":"WETH","collateralAmount":%q,"debtAmount":%q}]}`,
		actor.String(), scaled(10), scaled(5_000)), nil)
	if resp.Error != nil {
		t.Fatalf("redeem and burn: %+v", resp.Error)
	}
	if env.weth.BalanceOf(actor).String() != scaled(10) {
		t.Fatalf("collateral did not round-trip: %s", env.weth.BalanceOf(actor))
	}
	if env.debt.TotalSupply().Sign() != 0 {
		t.Fatalf("debt supply not retired: %s", env.debt.TotalSupply())
	}
}

func TestRedeemAndBurnViaSingleMethods(t *testing.T) {
	env := newTestEnv(t)
	actor := rpcAddress(0x20)
	env.weth.Mint(actor, new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	_, resp := env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"collateral_deposit","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(2)), nil)
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}
	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":2,"method":"debt_mint","params":[{"actor":%q,"amount":%q}]}`,
		actor.String(), scaled(1_000)), nil)
	if resp.Error != nil {
		t.Fatalf("mint: %+v", resp.Error)
	}
	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":3,"method":"debt_burn","params":[{"actor":%q,"amount":%q}]}`,
		actor.String(), scaled(1_000)), nil)
	if resp.Error != nil {
		t.Fatalf("burn: %+v", resp.Error)
	}
	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":4,"method":"collateral_redeem","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(2)), nil)
	if resp.Error != nil {
		t.Fatalf("redeem: %+v", resp.Error)
	}
	if env.weth.BalanceOf(actor).String() != scaled(2) {
		t.Fatalf("collateral did not return: %s", env.weth.BalanceOf(actor))
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.call(t, `{"jsonrpc":"2.0","id":1,"method":"engine_unknown","params":[]}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.call(t, `{"jsonrpc":`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	env := newTestEnv(t)
	_, resp := env.call(t, `{"jsonrpc":"1.0","id":1,"method":"engine_totals","params":[]}`, nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestInvalidAddressParam(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.call(t, `{"jsonrpc":"2.0","id":1,"method":"engine_getHealthFactor","params":[{"address":"not-an-address"}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestEngineFailuresMapToCodes(t *testing.T) {
	env := newTestEnv(t)
	actor := rpcAddress(0x20)

	// Minting with no collateral violates the solvency invariant.
	rec, resp := env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"debt_mint","params":[{"actor":%q,"amount":%q}]}`,
		actor.String(), scaled(100)), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvariantViolation {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	// An unfunded deposit is an external token failure.
	rec, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":2,"method":"collateral_deposit","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(1)), nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeExternalFailure {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	// Liquidating a healthy target is a liquidation-state error.
	env.weth.Mint(actor, new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	_, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":3,"method":"collateral_deposit","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(10)), nil)
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}
	rec, resp = env.call(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":4,"method":"engine_liquidate","params":[{"liquidator":%q,"target":%q,"asset":"WETH","debtToCover":%q}]}`,
		rpcAddress(0x21).String(), actor.String(), scaled(1)), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeLiquidation {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	t.Setenv("STABLECORE_RPC_TOKEN", "swordfish")
	env := newTestEnv(t)
	actor := rpcAddress(0x20)
	env.weth.Mint(actor, new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	deposit := fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"collateral_deposit","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(1))

	rec, resp := env.call(t, deposit, nil)
	if rec.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("missing token: status=%d error=%+v", rec.Code, resp.Error)
	}

	rec, resp = env.call(t, deposit, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("wrong token: status=%d error=%+v", rec.Code, resp.Error)
	}

	_, resp = env.call(t, deposit, map[string]string{"Authorization": "Bearer swordfish"})
	if resp.Error != nil {
		t.Fatalf("valid token rejected: %+v", resp.Error)
	}

	// Read-only methods stay open.
	_, resp = env.call(t, `{"jsonrpc":"2.0","id":2,"method":"engine_totals","params":[]}`, nil)
	if resp.Error != nil {
		t.Fatalf("query blocked without token: %+v", resp.Error)
	}
}

func TestMutationRateLimit(t *testing.T) {
	env := newTestEnv(t)
	actor := rpcAddress(0x20)
	env.weth.Mint(actor, new(big.Int).Mul(big.NewInt(1_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	deposit := fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"collateral_deposit","params":[{"actor":%q,"asset":"WETH","amount":%q}]}`,
		actor.String(), scaled(1))

	for i := 0; i < maxTxPerWindow; i++ {
		rec, resp := env.call(t, deposit, nil)
		if rec.Code != http.StatusOK || resp.Error != nil {
			t.Fatalf("request %d rejected early: status=%d error=%+v", i, rec.Code, resp.Error)
		}
	}
	rec, resp := env.call(t, deposit, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestShutdownDrainsServer(t *testing.T) {
	env := newTestEnv(t)

	if err := env.server.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown before start: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ln) }()

	base := "http://" + ln.Addr().String()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, getErr := http.Get(base + "/healthz")
		if getErr == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", getErr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("serve returned %v, want ErrServerClosed", err)
	}
}
