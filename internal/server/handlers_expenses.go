package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/ledger"
	"github.com/krsoni/homeledger/internal/middleware"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage"
)

type obligationRequest struct {
	UserID string          `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type createExpenseRequest struct {
	HouseholdID   string              `json:"household_id" binding:"required"`
	PayerID       string              `json:"payer_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Category      string              `json:"category"`
	Note          string              `json:"note"`
	Date          *time.Time          `json:"date"`
	PersonalMoney *bool               `json:"personal_money"`
	Obligations   []obligationRequest `json:"obligations"`
}

type updateExpenseRequest struct {
	Amount      *decimal.Decimal     `json:"amount"`
	Category    *string              `json:"category"`
	Note        *string              `json:"note"`
	Date        *time.Time           `json:"date"`
	Obligations *[]obligationRequest `json:"obligations"`
}

type settleRequest struct {
	UserID string `json:"user_id"`
}

type obligationResponse struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Settled   bool            `json:"settled"`
	SettledAt *time.Time      `json:"settled_at,omitempty"`
	Note      string          `json:"note,omitempty"`
}

type attachmentResponse struct {
	PublicID   string    `json:"public_id"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type expenseResponse struct {
	ID          string               `json:"id"`
	HouseholdID string               `json:"household_id"`
	CreatedBy   string               `json:"created_by"`
	PayerID     string               `json:"payer_id"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency"`
	Category    string               `json:"category"`
	Note        string               `json:"note,omitempty"`
	Date        time.Time            `json:"date"`
	Obligations []obligationResponse `json:"obligations"`
	Attachments []attachmentResponse `json:"attachments,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type expensePageResponse struct {
	Expenses   []expenseResponse `json:"expenses"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"total_pages"`
}

func toObligations(reqs []obligationRequest) []models.Obligation {
	out := make([]models.Obligation, len(reqs))
	for i, o := range reqs {
		out[i] = models.Obligation{UserID: o.UserID, Amount: o.Amount, Note: o.Note}
	}
	return out
}

func toExpenseResponse(e *models.Expense) expenseResponse {
	obligations := make([]obligationResponse, len(e.Obligations))
	for i, o := range e.Obligations {
		obligations[i] = obligationResponse{
			UserID:    o.UserID,
			Amount:    o.Amount,
			Settled:   o.Settled,
			SettledAt: o.SettledAt,
			Note:      o.Note,
		}
	}
	var attachments []attachmentResponse
	for _, a := range e.Attachments {
		attachments = append(attachments, attachmentResponse{
			PublicID:   a.PublicID,
			URL:        a.URL,
			UploadedAt: a.UploadedAt,
		})
	}
	return expenseResponse{
		ID:          e.ID,
		HouseholdID: e.HouseholdID,
		CreatedBy:   e.CreatedBy,
		PayerID:     e.PayerID,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Category:    e.Category,
		Note:        e.Note,
		Date:        e.Date,
		Obligations: obligations,
		Attachments: attachments,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// createExpense accepts JSON, or multipart/form-data when receipt files ride
// along. Multipart fields mirror the JSON names, with obligations as a JSON
// array string and files under "receipts".
func (s *Server) createExpense(c *gin.Context) {
	callerID := middleware.UserID(c)

	var req createExpenseRequest
	var uploaded []models.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		parsed, files, err := s.parseMultipartExpense(c)
		if err != nil {
			respondError(c, err)
			return
		}
		req = parsed
		uploaded, err = s.uploadReceipts(c, files)
		if err != nil {
			respondError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.PayerID == "" {
		req.PayerID = callerID
	}

	in := ledger.CreateExpenseInput{
		HouseholdID:   req.HouseholdID,
		PayerID:       req.PayerID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Category:      req.Category,
		Note:          req.Note,
		Obligations:   toObligations(req.Obligations),
		PersonalMoney: req.PersonalMoney,
		Attachments:   uploaded,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}

	e, err := s.ledger.CreateExpense(c.Request.Context(), callerID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toExpenseResponse(e))
}

func (s *Server) getExpense(c *gin.Context) {
	e, err := s.ledger.GetExpense(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExpenseResponse(e))
}

func (s *Server) listExpenses(c *gin.Context) {
	householdID := c.Query("household_id")
	if householdID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "household_id is required"})
		return
	}

	f := ledger.ListFilter{
		Month:   queryInt(c, "month"),
		Year:    queryInt(c, "year"),
		PayerID: c.Query("payer_id"),
		Search:  c.Query("q"),
		Named:   c.Query("filter"),
	}
	p := storage.PageRequest{
		Page:  queryInt(c, "page"),
		Limit: queryInt(c, "limit"),
	}

	page, err := s.ledger.ListExpenses(c.Request.Context(), middleware.UserID(c), householdID, f, p)
	if err != nil {
		respondError(c, err)
		return
	}

	out := expensePageResponse{
		Expenses:   make([]expenseResponse, len(page.Expenses)),
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	}
	for i, e := range page.Expenses {
		out.Expenses[i] = toExpenseResponse(e)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) updateExpense(c *gin.Context) {
	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	patch := ledger.ExpensePatch{
		Amount:   req.Amount,
		Category: req.Category,
		Note:     req.Note,
		Date:     req.Date,
	}
	if req.Obligations != nil {
		obligations := toObligations(*req.Obligations)
		patch.Obligations = &obligations
	}

	e, err := s.ledger.UpdateExpense(c.Request.Context(), middleware.UserID(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExpenseResponse(e))
}

func (s *Server) deleteExpense(c *gin.Context) {
	if err := s.ledger.DeleteExpense(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// markSettled flips one member's obligation. The body names the member; when
// absent the caller settles their own share.
func (s *Server) markSettled(c *gin.Context) {
	callerID := middleware.UserID(c)

	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID == "" {
		req.UserID = callerID
	}

	e, err := s.ledger.MarkSettled(c.Request.Context(), callerID, c.Param("id"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExpenseResponse(e))
}

func (s *Server) parseMultipartExpense(c *gin.Context) (createExpenseRequest, []*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return createExpenseRequest{}, nil, apperr.Validation("invalid multipart form")
	}
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	req := createExpenseRequest{
		HouseholdID: value("household_id"),
		PayerID:     value("payer_id"),
		Currency:    value("currency"),
		Category:    value("category"),
		Note:        value("note"),
	}
	if req.HouseholdID == "" {
		return createExpenseRequest{}, nil, apperr.Validation("household_id is required")
	}

	if v := value("amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return createExpenseRequest{}, nil, apperr.Validation("invalid amount %q", v)
		}
		req.Amount = amount
	}
	if v := value("date"); v != "" {
		date, err := parseDate(v)
		if err != nil {
			return createExpenseRequest{}, nil, apperr.Validation("invalid date %q", v)
		}
		req.Date = &date
	}
	if v := value("personal_money"); v != "" {
		personal, err := strconv.ParseBool(v)
		if err != nil {
			return createExpenseRequest{}, nil, apperr.Validation("invalid personal_money %q", v)
		}
		req.PersonalMoney = &personal
	}
	if v := value("obligations"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Obligations); err != nil {
			return createExpenseRequest{}, nil, apperr.Validation("invalid obligations payload")
		}
	}

	return req, form.File["receipts"], nil
}

// uploadReceipts stores each file before the expense is persisted. When a
// later file fails, the earlier ones are deleted here; once all files are
// handed to the ledger, compensation is its job.
func (s *Server) uploadReceipts(c *gin.Context, files []*multipart.FileHeader) ([]models.Attachment, error) {
	var uploaded []models.Attachment
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.deleteUploaded(c, uploaded)
			return nil, apperr.Validation("unreadable file %q", fh.Filename)
		}
		att, err := s.attachments.Upload(c.Request.Context(), fh.Filename, f)
		f.Close()
		if err != nil {
			s.deleteUploaded(c, uploaded)
			return nil, apperr.Internal(err)
		}
		uploaded = append(uploaded, att)
	}
	return uploaded, nil
}

func (s *Server) deleteUploaded(c *gin.Context, atts []models.Attachment) {
	for _, a := range atts {
		if _, err := s.attachments.Delete(c.Request.Context(), a.PublicID); err != nil {
			slog.Error("attachment cleanup failed", "public_id", a.PublicID, "error", err)
		}
	}
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
