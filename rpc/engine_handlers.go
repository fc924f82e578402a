package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"time"

	"stablecore/crypto"
	"stablecore/observability"
)

type depositParams struct {
	Actor  string `json:"actor"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type mintParams struct {
	Actor  string `json:"actor"`
	Amount string `json:"amount"`
}

type depositAndMintParams struct {
	Actor            string `json:"actor"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	Target      string `json:"target"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type accountParams struct {
	Address string `json:"address"`
}

type valueParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type accountInfoResult struct {
	Address            string `json:"address"`
	MintedDebt         string `json:"mintedDebt"`
	CollateralValueUSD string `json:"collateralValueUsd"`
	HealthFactor       string `json:"healthFactor"`
}

type totalsResult struct {
	TotalCollateralValueUSD string `json:"totalCollateralValueUsd"`
	TotalMintedDebt         string `json:"totalMintedDebt"`
}

type okResult struct {
	Status string `json:"status"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func parseAddress(value string) (crypto.Address, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid address", Data: err.Error()}
	}
	return addr, nil
}

func parseAmount(value string) (*big.Int, *RPCError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid amount", Data: value}
	}
	return amount, nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	actor, rpcErr := parseAddress(params.Actor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.DepositCollateral(actor, params.Asset, amount)
	observability.EngineMetrics().Observe("deposit", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	actor, rpcErr := parseAddress(params.Actor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.RedeemCollateral(actor, params.Asset, amount)
	observability.EngineMetrics().Observe("redeem", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	actor, rpcErr := parseAddress(params.Actor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.MintDebt(actor, amount)
	observability.EngineMetrics().Observe("mint", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleBurn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	actor, rpcErr := parseAddress(params.Actor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.BurnDebt(actor, amount)
	observability.EngineMetrics().Observe("burn", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositAndMintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	actor, rpcErr := parseAddress(params.Actor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	collateralAmount, rpcErr := parseAmount(params.CollateralAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	debtAmount, rpcErr := parseAmount(params.DebtAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.DepositAndMint(actor, params.Asset, collateralAmount, debtAmount)
	observability.EngineMetrics().Observe("depositAndMint", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleRedeemAndBurn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositAndMintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	actor, rpcErr := parseAddress(params.Actor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	collateralAmount, rpcErr := parseAmount(params.CollateralAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	debtAmount, rpcErr := parseAmount(params.DebtAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.RedeemAndBurn(actor, params.Asset, collateralAmount, debtAmount)
	observability.EngineMetrics().Observe("redeemAndBurn", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params liquidateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	liquidator, rpcErr := parseAddress(params.Liquidator)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	target, rpcErr := parseAddress(params.Target)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	debtToCover, rpcErr := parseAmount(params.DebtToCover)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	start := time.Now()
	err := s.engine.Liquidate(liquidator, target, params.Asset, debtToCover)
	observability.EngineMetrics().Observe("liquidate", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{Status: "ok"})
}

func (s *Server) handleGetHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	hf, err := s.engine.HealthFactor(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"healthFactor": hf.String()})
}

func (s *Server) handleGetAccountInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	debt, value, err := s.engine.AccountInfo(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	hf, err := s.engine.HealthFactor(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, accountInfoResult{
		Address:            addr.String(),
		MintedDebt:         debt.String(),
		CollateralValueUSD: value.String(),
		HealthFactor:       hf.String(),
	})
}

func (s *Server) handleGetUsdValue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params valueParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	value, err := s.engine.UsdValue(params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"usdValue": value.String()})
}

func (s *Server) handleGetTokenAmountFromUsd(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params valueParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	tokens, err := s.engine.TokenAmountFromUsd(params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"tokenAmount": tokens.String()})
}

func (s *Server) handleTotals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	value, debt, err := s.engine.Totals()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalsResult{
		TotalCollateralValueUSD: value.String(),
		TotalMintedDebt:         debt.String(),
	})
}
