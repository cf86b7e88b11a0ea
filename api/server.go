package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"blocklotto/application"
	"blocklotto/domain/entities"
	"blocklotto/domain/interfaces"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// LotteryService is the part of the application layer the API exposes
type LotteryService interface {
	CreateLottery(ctx context.Context, ticketPrice, drawHeight int64) (*entities.Lottery, error)
	BuyTickets(ctx context.Context, lotteryID int64, buyer string, ticketCount, payment int64) (*interfaces.PurchaseResult, error)
	GetLotteryInfo(ctx context.Context, lotteryID int64) (*interfaces.LotteryInfo, error)
	ClaimPrize(ctx context.Context, lotteryID int64, claimant string) (*entities.Settlement, error)
	Advance(ctx context.Context, lotteryID int64) (*interfaces.AdvanceResult, error)
	VoidStalled(ctx context.Context, lotteryID int64) (*entities.Lottery, error)
	GetAccount(ctx context.Context, owner string, entryLimit int) (*application.AccountInfo, error)
}

// BlockMiner is implemented by development oracles that can produce blocks on demand
type BlockMiner interface {
	Mine(n int) int64
}

// Server is the JSON HTTP boundary of the lottery engine
type Server struct {
	service    LotteryService
	oracle     interfaces.RandomnessOracle
	router     *httprouter.Router
	httpServer *http.Server
}

// NewServer creates a new API server. The block mining endpoint is only
// registered when the oracle implements BlockMiner.
func NewServer(addr string, service LotteryService, oracle interfaces.RandomnessOracle) *Server {
	s := &Server{
		service: service,
		oracle:  oracle,
		router:  httprouter.New(),
	}

	s.router.GET("/health", s.handleHealth)
	s.router.POST("/lotteries", s.handleCreateLottery)
	s.router.GET("/lotteries/:id", s.handleGetLottery)
	s.router.POST("/lotteries/:id/tickets", s.handleBuyTickets)
	s.router.POST("/lotteries/:id/claim", s.handleClaimPrize)
	s.router.POST("/lotteries/:id/advance", s.handleAdvance)
	s.router.POST("/lotteries/:id/void", s.handleVoidStalled)
	s.router.GET("/accounts/:owner", s.handleGetAccount)
	if miner, ok := oracle.(BlockMiner); ok {
		s.router.POST("/dev/blocks", s.handleMineBlocks(miner))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routed handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves requests in the background
func (s *Server) Start() {
	go func() {
		log.Infof("Lottery API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Lottery API server error: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type createLotteryRequest struct {
	TicketPrice int64 `json:"ticket_price"`
	DrawHeight  int64 `json:"draw_height"`
}

type buyTicketsRequest struct {
	Buyer       string `json:"buyer"`
	TicketCount int64  `json:"ticket_count"`
	Payment     int64  `json:"payment"`
}

type claimPrizeRequest struct {
	Claimant string `json:"claimant"`
}

type mineBlocksRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tip, err := s.oracle.TipHeight(r.Context())
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, ErrorBody{Code: "OracleUnavailable", Message: err.Error()})
		return
	}
	respondWithData(w, http.StatusOK, map[string]int64{"tip_height": tip})
}

func (s *Server) handleCreateLottery(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createLotteryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lottery, err := s.service.CreateLottery(r.Context(), req.TicketPrice, req.DrawHeight)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusCreated, newLotteryResponse(lottery))
}

func (s *Server) handleGetLottery(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := lotteryID(w, ps)
	if !ok {
		return
	}

	info, err := s.service.GetLotteryInfo(r.Context(), id)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, newLotteryInfoResponse(info))
}

func (s *Server) handleBuyTickets(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := lotteryID(w, ps)
	if !ok {
		return
	}
	var req buyTicketsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.BuyTickets(r.Context(), id, req.Buyer, req.TicketCount, req.Payment)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, PurchaseResponse{
		LotteryID:      id,
		FirstIndex:     result.Range.First,
		LastIndex:      result.Range.Last,
		PurchaseHeight: result.PurchaseHeight,
		TicketsSold:    result.Lottery.TicketsSold,
		PrizePool:      result.Lottery.PrizePool,
	})
}

func (s *Server) handleClaimPrize(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := lotteryID(w, ps)
	if !ok {
		return
	}
	var req claimPrizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	settlement, err := s.service.ClaimPrize(r.Context(), id, req.Claimant)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, newSettlementResponse(settlement))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := lotteryID(w, ps)
	if !ok {
		return
	}

	result, err := s.service.Advance(r.Context(), id)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, AdvanceResponse{
		LotteryID:  result.LotteryID,
		From:       result.From.DisplayName(),
		To:         result.To.DisplayName(),
		TipHeight:  result.TipHeight,
		Waiting:    result.Waiting,
		Draw:       newDrawResponse(result.Draw),
		Settlement: newSettlementResponse(result.Settlement),
	})
}

func (s *Server) handleVoidStalled(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := lotteryID(w, ps)
	if !ok {
		return
	}

	lottery, err := s.service.VoidStalled(r.Context(), id)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, newLotteryResponse(lottery))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	info, err := s.service.GetAccount(r.Context(), ps.ByName("owner"), 20)
	if err != nil {
		respondWithLotteryError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, newAccountResponse(info))
}

func (s *Server) handleMineBlocks(miner BlockMiner) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		req := mineBlocksRequest{Count: 1}
		if r.ContentLength > 0 && !decodeBody(w, r, &req) {
			return
		}
		if req.Count <= 0 || req.Count > 1000 {
			respondWithError(w, http.StatusBadRequest, ErrorBody{Code: "InvalidArgument", Message: "count must be between 1 and 1000"})
			return
		}
		tip := miner.Mine(req.Count)
		respondWithData(w, http.StatusOK, map[string]int64{"tip_height": tip})
	}
}

func lotteryID(w http.ResponseWriter, ps httprouter.Params) (int64, bool) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, ErrorBody{
			Code:    "InvalidArgument",
			Message: fmt.Sprintf("invalid lottery id %q", ps.ByName("id")),
		})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrorBody{Code: "InvalidRequest", Message: "Invalid request body"})
		return false
	}
	return true
}
