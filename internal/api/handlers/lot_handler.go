package handlers

import (
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/api/middleware"
	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const defaultTopBidders = 5

type LotHandler struct {
	engine          *services.BiddingEngine
	query           *services.QueryService
	defaultDuration time.Duration
	log             logger.Logger
}

type CreateLotRequest struct {
	ItemName        string          `json:"item_name"`
	Description     string          `json:"description"`
	BasePrice       decimal.Decimal `json:"base_price"`
	DurationSeconds int64           `json:"duration_seconds"`
}

type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BidResponse is returned for every bid attempt, accepted or not.
type BidResponse struct {
	Outcome string      `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	Code    string      `json:"code,omitempty"`
	Bid     *domain.Bid `json:"bid,omitempty"`
}

func NewLotHandler(engine *services.BiddingEngine, query *services.QueryService, defaultDuration time.Duration, log logger.Logger) *LotHandler {
	return &LotHandler{
		engine:          engine,
		query:           query,
		defaultDuration: defaultDuration,
		log:             log,
	}
}

func (h *LotHandler) CreateLot(c echo.Context) error {
	seller, _ := middleware.CurrentUser(c)

	var req CreateLotRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body", "code": domain.Code(domain.ErrInvalidArgument)})
	}

	// bounded before the conversion, which would otherwise wrap for huge values
	if req.DurationSeconds < 0 || req.DurationSeconds > int64(domain.MaxLotDuration/time.Second) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "duration_seconds out of range", "code": domain.Code(domain.ErrInvalidArgument)})
	}
	duration := h.defaultDuration
	if req.DurationSeconds != 0 {
		duration = time.Duration(req.DurationSeconds) * time.Second
	}

	lot, err := h.engine.CreateAuction(c.Request().Context(), services.CreateAuctionInput{
		ItemName:    req.ItemName,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		SellerID:    seller.ID,
		Duration:    duration,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	h.log.Info("Lot created", "lot_id", lot.ID, "seller_id", seller.ID)
	return c.JSON(http.StatusCreated, lot)
}

func (h *LotHandler) PlaceBid(c echo.Context) error {
	bidder, _ := middleware.CurrentUser(c)

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, BidResponse{
			Outcome: "rejected", Reason: "invalid argument", Code: domain.Code(domain.ErrInvalidArgument),
		})
	}

	bid, err := h.engine.PlaceBid(c.Request().Context(), c.Param("id"), bidder.ID, req.Amount)
	if err != nil {
		return c.JSON(statusFor(err), BidResponse{Outcome: "rejected", Reason: domain.Reason(err), Code: domain.Code(err)})
	}
	return c.JSON(http.StatusOK, BidResponse{Outcome: "accepted", Bid: bid})
}

func (h *LotHandler) ListOpen(c echo.Context) error {
	lots, err := h.query.OpenLots(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, lots)
}

// Leading answers 204 when no lot is open.
func (h *LotHandler) Leading(c echo.Context) error {
	lot, err := h.query.CurrentLeading(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	if lot == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, lot)
}

func (h *LotHandler) History(c echo.Context) error {
	lots, err := h.query.History(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, lots)
}

func (h *LotHandler) GetLot(c echo.Context) error {
	lot, err := h.query.Lot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

func (h *LotHandler) TopBidders(c echo.Context) error {
	n := defaultTopBidders
	if raw := c.QueryParam("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "n must be an integer", "code": domain.Code(domain.ErrInvalidArgument)})
		}
		n = parsed
	}

	bids, err := h.query.TopBidders(c.Request().Context(), c.Param("id"), n)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, bids)
}
