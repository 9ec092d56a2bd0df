package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chiprails/internal/audit"
	"chiprails/internal/config"
	"chiprails/internal/engine"
	"chiprails/internal/hmacauth"
	"chiprails/internal/idempotency"
	"chiprails/internal/ledger"
	"chiprails/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Server struct {
	cfg    *config.AppConfig
	eng    *engine.Engine
	store  audit.Store
	replay idempotency.Store
	ledger ledger.Adapter

	operatorHMAC *hmacauth.Verifier
	oracleHMAC   *hmacauth.Verifier
	playerHMAC   *hmacauth.Verifier

	httpServer  *http.Server
	metrics     *metricsRegistry
	log         zerolog.Logger
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, eng *engine.Engine, led ledger.Adapter, store audit.Store, replay idempotency.Store, log zerolog.Logger) *Server {
	operatorVerifier := &hmacauth.Verifier{
		Secret:  cfg.Service.OperatorHMACSecret,
		MaxSkew: cfg.Service.HMACClockSkew,
	}
	oracleVerifier := &hmacauth.Verifier{
		Secret:          cfg.Service.OracleHMACSecret,
		MaxSkew:         cfg.Service.HMACClockSkew,
		SignatureHeader: "X-Oracle-Signature",
		TimestampHeader: "X-Oracle-Timestamp",
	}
	playerVerifier := &hmacauth.Verifier{
		Secret:  cfg.Service.PlayerHMACSecret,
		MaxSkew: cfg.Service.HMACClockSkew,
	}

	metrics := newMetricsRegistry()

	s := &Server{
		cfg:          cfg,
		eng:          eng,
		store:        store,
		replay:       replay,
		ledger:       led,
		operatorHMAC: operatorVerifier,
		oracleHMAC:   oracleVerifier,
		playerHMAC:   playerVerifier,
		metrics:      metrics,
		log:          log.With().Str("component", "server").Logger(),
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := led.(ledger.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	// Audit writes hang off the engine's commit/finish observers so only
	// applied transactions reach the trail.
	eng.Shoes.OnCommit(s.recordCommit)
	eng.Games.OnFinish(s.recordFinish)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/operator/seed-requests", s.operatorHMAC.Middleware(http.HandlerFunc(s.handleSeedRequest)))
	mux.Handle("PUT /api/v1/operator/oracle-config", s.operatorHMAC.Middleware(http.HandlerFunc(s.handleOracleConfig)))
	mux.Handle("POST /api/v1/operator/slots", s.operatorHMAC.Middleware(http.HandlerFunc(s.handleCreateSlot)))
	mux.Handle("POST /api/v1/operator/slots/{id}/commit", s.operatorHMAC.Middleware(http.HandlerFunc(s.handleCommitSlot)))
	mux.Handle("POST /api/v1/callbacks/randomness", s.oracleHMAC.Middleware(http.HandlerFunc(s.handleRandomnessCallback)))
	mux.Handle("POST /api/v1/games", s.playerHMAC.Middleware(http.HandlerFunc(s.handleStartGame)))
	mux.Handle("POST /api/v1/games/{id}/finish", s.playerHMAC.Middleware(http.HandlerFunc(s.handleFinishGame)))
	mux.HandleFunc("GET /api/v1/games/{id}", s.handleGetGame)
	mux.HandleFunc("GET /api/v1/slots/{id}", s.handleGetSlot)
	mux.Handle("GET /api/v1/metrics", metrics.handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type seedRequestResponse struct {
	RequestID uint64 `json:"requestId"`
	Status    string `json:"status"`
}

type oracleConfigRequest struct {
	KeyHash          string `json:"keyHash"`
	SubscriptionID   uint64 `json:"subscriptionId"`
	CallbackGasLimit uint32 `json:"callbackGasLimit"`
	Confirmations    uint16 `json:"confirmations"`
}

type createSlotRequest struct {
	CommitHash string `json:"commitHash"`
	DeckSize   uint64 `json:"deckSize"`
	ExpiresAt  string `json:"expiresAt,omitempty"` // RFC 3339, optional
}

type commitSlotRequest struct {
	CommitHash string `json:"commitHash"`
	DeckSize   uint64 `json:"deckSize"`
}

type randomnessCallbackRequest struct {
	RequestID uint64 `json:"requestId"`
	Seed      string `json:"seed"` // decimal string
}

type startGameRequest struct {
	Player    string `json:"player"`
	SlotID    uint64 `json:"slotId"`
	BetAmount string `json:"betAmount"` // decimal string in base units
}

type finishGameRequest struct {
	Caller      string `json:"caller"`
	CardsUsed   uint64 `json:"cardsUsed"`
	SubDeckHash string `json:"subDeckHash"`
	Outcome     string `json:"outcome"` // "player_won" | "player_lost"
}

func (s *Server) handleSeedRequest(w http.ResponseWriter, r *http.Request) {
	id, err := s.eng.Randomness.RequestSeed(r.Context(), s.cfg.Deployment.Operator)
	if err != nil {
		s.metrics.incSeedRequest("failed")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.incSeedRequest("requested")
	writeJSON(w, http.StatusAccepted, seedRequestResponse{RequestID: id, Status: "requested"})
}

func (s *Server) handleOracleConfig(w http.ResponseWriter, r *http.Request) {
	var payload oracleConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	err := s.eng.Randomness.SetOracleConfig(s.cfg.Deployment.Operator, oracle.Config{
		KeyHash:          payload.KeyHash,
		SubscriptionID:   payload.SubscriptionID,
		CallbackGasLimit: payload.CallbackGasLimit,
		Confirmations:    payload.Confirmations,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	var payload createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	hash, ok := parseHash(payload.CommitHash)
	if !ok {
		http.Error(w, "commitHash must be a 32-byte hex digest", http.StatusBadRequest)
		return
	}
	var expiry time.Time
	if payload.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, payload.ExpiresAt)
		if err != nil {
			http.Error(w, "expiresAt must be RFC 3339", http.StatusBadRequest)
			return
		}
		expiry = t
	}

	id, err := s.eng.Shoes.CreateSlot(s.cfg.Deployment.Operator, hash, payload.DeckSize, expiry)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"slotId": id})
}

func (s *Server) handleCommitSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid slot id", http.StatusBadRequest)
		return
	}
	var payload commitSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	hash, ok := parseHash(payload.CommitHash)
	if !ok {
		http.Error(w, "commitHash must be a 32-byte hex digest", http.StatusBadRequest)
		return
	}

	if err := s.eng.Shoes.Commit(s.cfg.Deployment.Operator, slotID, hash, payload.DeckSize); err != nil {
		s.metrics.incCommit("rejected")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.incCommit("committed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (s *Server) handleRandomnessCallback(w http.ResponseWriter, r *http.Request) {
	var payload randomnessCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	seed, ok := new(big.Int).SetString(payload.Seed, 10)
	if !ok {
		http.Error(w, "seed must be a decimal integer", http.StatusBadRequest)
		return
	}

	if err := s.eng.Randomness.Fulfill(payload.RequestID, seed); err != nil {
		s.metrics.incFulfillment("rejected")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.incFulfillment("fulfilled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "fulfilled"})
}

const (
	startKeyPrefix  = "start:"
	finishKeyPrefix = "finish:"
)

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	if existing, _ := s.replay.Get(ctx, startKeyPrefix+key); existing != nil {
		s.metrics.incStart("replayed")
		writeStored(w, existing)
		return
	}

	var payload startGameRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if payload.Player == "" {
		http.Error(w, "player is required", http.StatusBadRequest)
		return
	}
	bet, ok := new(big.Int).SetString(payload.BetAmount, 10)
	if !ok {
		http.Error(w, "betAmount must be a decimal integer", http.StatusBadRequest)
		return
	}

	id, err := s.eng.Games.StartGame(ctx, payload.Player, payload.SlotID, bet)
	if err != nil {
		s.metrics.incStart("rejected")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.incStart("started")
	s.publishExposure()
	s.writeAndRecord(ctx, w, startKeyPrefix+key, http.StatusCreated, map[string]uint64{"gameId": id})
}

func (s *Server) handleFinishGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return
	}
	if existing, _ := s.replay.Get(r.Context(), finishKeyPrefix+key); existing != nil {
		s.metrics.incFinish("replayed")
		writeStored(w, existing)
		return
	}
	var payload finishGameRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if payload.Caller == "" {
		http.Error(w, "caller is required", http.StatusBadRequest)
		return
	}
	var outcome engine.Outcome
	switch payload.Outcome {
	case string(engine.PlayerWon):
		outcome = engine.PlayerWon
	case string(engine.PlayerLost):
		outcome = engine.PlayerLost
	default:
		http.Error(w, "outcome must be player_won or player_lost", http.StatusBadRequest)
		return
	}
	hash, ok := parseHash(payload.SubDeckHash)
	if !ok {
		http.Error(w, "subDeckHash must be a 32-byte hex digest", http.StatusBadRequest)
		return
	}

	err := s.eng.Games.FinishGame(r.Context(), payload.Caller, gameID, payload.CardsUsed, hash, outcome)
	if err != nil {
		s.metrics.incFinish("rejected")
		s.writeEngineError(w, err)
		return
	}
	s.metrics.incFinish(string(outcome))
	s.publishExposure()
	s.writeAndRecord(r.Context(), w, finishKeyPrefix+key, http.StatusOK, map[string]string{"status": "finished"})
}

type gameResponse struct {
	GameID      uint64 `json:"gameId"`
	Player      string `json:"player"`
	SlotID      uint64 `json:"slotId"`
	BetAmount   string `json:"betAmount"`
	State       string `json:"state"`
	CardsUsed   uint64 `json:"cardsUsed,omitempty"`
	SubDeckHash string `json:"subDeckHash,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	InProgress  bool   `json:"inProgress"`
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}
	game, err := s.eng.Games.Game(gameID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := gameResponse{
		GameID:     game.ID,
		Player:     game.Player,
		SlotID:     game.ShoeSlotID,
		BetAmount:  game.BetAmount.String(),
		State:      string(game.State),
		CardsUsed:  game.CardsUsed,
		Outcome:    string(game.Outcome),
		InProgress: game.State == engine.GameActive,
	}
	if game.State == engine.GameFinished {
		resp.SubDeckHash = game.SubDeckHash.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

type slotResponse struct {
	SlotID     uint64 `json:"slotId"`
	CommitHash string `json:"commitHash"`
	DeckSize   uint64 `json:"deckSize"`
	Pointer    uint64 `json:"pointer"`
	Active     bool   `json:"active"`
	InProgress bool   `json:"inProgress"`
}

func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid slot id", http.StatusBadRequest)
		return
	}
	slot, err := s.eng.Shoes.Slot(slotID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	inUse, _ := s.eng.Shoes.InUse(slotID)

	writeJSON(w, http.StatusOK, slotResponse{
		SlotID:     slot.ID,
		CommitHash: slot.CommitHash.Hex(),
		DeckSize:   slot.DeckSize,
		Pointer:    slot.Pointer,
		Active:     slot.Active,
		InProgress: inUse,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	exposure := s.eng.Exposure()
	s.metrics.setExposure(exposure.OutstandingLiability, exposure.ActiveGames)

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status      string      `json:"status"`
		RPC         interface{} `json:"rpc"`
		Database    interface{} `json:"database"`
		ActiveGames int         `json:"active_games"`
		Liability   string      `json:"outstanding_liability"`
	}{
		Status:      status,
		RPC:         rpcInfo,
		Database:    dbInfo,
		ActiveGames: exposure.ActiveGames,
		Liability:   exposure.OutstandingLiability.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) recordCommit(slot engine.ShoeSlot) {
	seed := ""
	if slot.BoundSeed != nil {
		seed = slot.BoundSeed.String()
	}
	rec := audit.CommitRecord{
		SlotID:      slot.ID,
		CommitHash:  slot.CommitHash.Hex(),
		DeckSize:    slot.DeckSize,
		BoundSeed:   seed,
		CommittedAt: time.Now().UTC(),
	}
	if err := s.store.SaveCommit(context.Background(), rec); err != nil {
		s.log.Error().Err(err).Uint64("slot_id", slot.ID).Msg("audit commit write failed")
	}
}

func (s *Server) recordFinish(game engine.Game) {
	rec := audit.GameRecord{
		GameID:      game.ID,
		Player:      game.Player,
		SlotID:      game.ShoeSlotID,
		BetAmount:   game.BetAmount.String(),
		CardsUsed:   game.CardsUsed,
		SubDeckHash: game.SubDeckHash.Hex(),
		Outcome:     string(game.Outcome),
		FinishedAt:  game.FinishedAt,
	}
	if err := s.store.SaveGame(context.Background(), rec); err != nil {
		s.log.Error().Err(err).Uint64("game_id", game.ID).Msg("audit game write failed")
	}
}

func (s *Server) publishExposure() {
	exposure := s.eng.Exposure()
	s.metrics.setExposure(exposure.OutstandingLiability, exposure.ActiveGames)
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch engine.Classify(err) {
	case engine.KindAuthorization:
		status = http.StatusForbidden
	case engine.KindState:
		status = http.StatusConflict
	case engine.KindCapacity:
		status = http.StatusUnprocessableEntity
	case engine.KindRandomness:
		if errors.Is(err, engine.ErrUnknownRequest) {
			status = http.StatusNotFound
		} else {
			status = http.StatusConflict
		}
	case engine.KindCustody:
		status = http.StatusPaymentRequired
	case engine.KindNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAndRecord stores the response under the idempotency key before writing
// it, so a client retry replays this exact body and status.
func (s *Server) writeAndRecord(ctx context.Context, w http.ResponseWriter, key string, status int, body interface{}) {
	b, _ := json.Marshal(body)
	rec := idempotency.Record{
		StatusCode: status,
		Response:   b,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().Add(s.cfg.Service.IdempotencyWindow).UTC(),
	}
	if err := s.replay.Save(ctx, key, rec); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("idempotency write failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeStored(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write(rec.Response)
}

func parseHash(value string) (common.Hash, bool) {
	b, err := hexutil.Decode(value)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
			r.Header.Set("X-Request-Id", reqID)
		}
		s.log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}
