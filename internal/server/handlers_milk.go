package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/middleware"
	"github.com/krsoni/homeledger/internal/models"
)

type upsertMilkRequest struct {
	HouseholdID string          `json:"household_id" binding:"required"`
	Date        string          `json:"date" binding:"required"`
	Litres      decimal.Decimal `json:"litres"`
}

type generateMilkRequest struct {
	HouseholdID string `json:"household_id" binding:"required"`
	Month       int    `json:"month" binding:"required"`
	Year        int    `json:"year" binding:"required"`
	PayerID     string `json:"payer_id"`
}

type milkDayResponse struct {
	Date   string          `json:"date"`
	Litres decimal.Decimal `json:"litres"`
}

type milkSummaryResponse struct {
	Days          []milkDayResponse `json:"days"`
	TotalLitres   decimal.Decimal   `json:"total_litres"`
	PricePerLitre decimal.Decimal   `json:"price_per_litre"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
}

func toMilkDayResponse(d models.MilkDay) milkDayResponse {
	return milkDayResponse{Date: d.Date.Format("2006-01-02"), Litres: d.Litres}
}

func (s *Server) upsertMilkDay(c *gin.Context) {
	var req upsertMilkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	day, err := parseDate(req.Date)
	if err != nil {
		respondError(c, apperr.Validation("invalid date %q", req.Date))
		return
	}

	d, err := s.ledger.UpsertDailyMilk(c.Request.Context(), middleware.UserID(c), req.HouseholdID, day, req.Litres)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMilkDayResponse(*d))
}

func (s *Server) listMonthMilk(c *gin.Context) {
	householdID := c.Query("household_id")
	if householdID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "household_id is required"})
		return
	}
	month := queryInt(c, "month")
	year := queryInt(c, "year")

	summary, err := s.ledger.MonthSummary(c.Request.Context(), middleware.UserID(c), householdID, time.Month(month), year)
	if err != nil {
		respondError(c, err)
		return
	}

	out := milkSummaryResponse{
		Days:          make([]milkDayResponse, len(summary.Days)),
		TotalLitres:   summary.TotalLitres,
		PricePerLitre: summary.PricePerLitre,
		TotalAmount:   summary.TotalAmount,
	}
	for i, d := range summary.Days {
		out.Days[i] = toMilkDayResponse(d)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) generateMonthlyMilk(c *gin.Context) {
	var req generateMilkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	e, err := s.ledger.GenerateMonthlyExpense(c.Request.Context(), middleware.UserID(c), req.HouseholdID, time.Month(req.Month), req.Year, req.PayerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toExpenseResponse(e))
}
