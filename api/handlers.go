package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/openseai-risk/internal/store"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

// ============================================================
// Request types
// ============================================================

// CreatePortfolioRequest is the body for POST /api/v1/portfolios.
type CreatePortfolioRequest struct {
	Name             string             `json:"name"                        validate:"required,max=100"`
	InitialCash      *decimal.Decimal   `json:"initial_cash,omitempty"`
	RiskProfile      string             `json:"risk_profile,omitempty"      validate:"omitempty,oneof=Conservative Moderate Aggressive conservative moderate aggressive"`
	InvestmentGoals  []string           `json:"investment_goals,omitempty"  validate:"omitempty,dive,required"`
	TargetAllocation map[string]float64 `json:"target_allocation,omitempty" validate:"omitempty,dive,gte=0,lte=100"`
}

// AddHoldingRequest is the body for POST /api/v1/portfolios/{id}/holdings.
type AddHoldingRequest struct {
	Symbol      string          `json:"symbol"                 validate:"required,max=32"`
	Quantity    int64           `json:"quantity"               validate:"gt=0"`
	Price       decimal.Decimal `json:"price"`
	Fees        decimal.Decimal `json:"fees,omitempty"`
	Date        string          `json:"date,omitempty"         validate:"omitempty,datetime=2006-01-02"` // YYYY-MM-DD, default now
	Sector      string          `json:"sector,omitempty"       validate:"max=64"`
	CompanyName string          `json:"company_name,omitempty" validate:"max=128"`
	Note        string          `json:"note,omitempty"         validate:"max=255"`
}

// SellRequest is the body for POST /api/v1/portfolios/{id}/sell.
type SellRequest struct {
	Symbol   string          `json:"symbol"         validate:"required,max=32"`
	Quantity int64           `json:"quantity"       validate:"gt=0"`
	Price    decimal.Decimal `json:"price"`
	Fees     decimal.Decimal `json:"fees,omitempty"`
	Date     string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Note     string          `json:"note,omitempty" validate:"max=255"`
}

// DividendRequest is the body for POST /api/v1/portfolios/{id}/dividends.
type DividendRequest struct {
	Symbol string          `json:"symbol"         validate:"required,max=32"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Note   string          `json:"note,omitempty" validate:"max=255"`
}

// OptimizeRequest is the optional body for POST /api/v1/portfolios/{id}/optimize.
type OptimizeRequest struct {
	// TargetReturn is an annual fraction (0.15 = 15%); omitted means
	// maximum Sharpe ratio.
	TargetReturn *float64 `json:"target_return,omitempty" validate:"omitempty,gt=-1,lt=10"`
}

// CreatedResponse carries the id of a created resource.
type CreatedResponse struct {
	ID string `json:"id"`
}

// ============================================================
// Decoding
// ============================================================

// decode reads a JSON body into v and validates it. An empty body is
// accepted when optional is true.
func (s *Server) decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "gt", "gte", "lt", "lte", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "datetime":
			msgs = append(msgs, field+" must be a YYYY-MM-DD date")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// parseDate reads an optional YYYY-MM-DD date in IST; zero means now.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", s, utils.IST)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ============================================================
// Portfolio handlers
// ============================================================

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	cash := decimal.NewFromFloat(s.cfg.Portfolio.DefaultInitialCash)
	if req.InitialCash != nil {
		cash = *req.InitialCash
	}
	profile := req.RiskProfile
	if profile == "" {
		profile = s.cfg.Portfolio.DefaultRiskProfile
	}

	id, err := s.svc.CreatePortfolio(r.Context(), store.CreatePortfolioInput{
		Name:             req.Name,
		InitialCash:      cash,
		RiskProfile:      profile,
		Goals:            req.InvestmentGoals,
		TargetAllocation: req.TargetAllocation,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, CreatedResponse{ID: id})
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListPortfolios(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.GetSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	var req AddHoldingRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.svc.AddHolding(r.Context(), chi.URLParam(r, "id"), store.AddHoldingInput{
		Symbol:      req.Symbol,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Fees:        req.Fees,
		At:          parseDate(req.Date),
		Sector:      req.Sector,
		CompanyName: req.CompanyName,
		Note:        req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, CreatedResponse{ID: id})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	txID, err := s.svc.SellHolding(r.Context(), chi.URLParam(r, "id"), store.SellInput{
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
		Fees:     req.Fees,
		At:       parseDate(req.Date),
		Note:     req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, CreatedResponse{ID: txID})
}

func (s *Server) handleDividend(w http.ResponseWriter, r *http.Request) {
	var req DividendRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	txID, err := s.svc.RecordDividend(r.Context(), chi.URLParam(r, "id"), store.DividendInput{
		Symbol: req.Symbol,
		Amount: req.Amount,
		At:     parseDate(req.Date),
		Note:   req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, CreatedResponse{ID: txID})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	prices, err := s.svc.RefreshPrices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, prices)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.svc.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, txs)
}

func (s *Server) handleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.TakeSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, snap)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.Snapshots(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snaps)
}

// ============================================================
// Analytics handlers
// ============================================================

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.ComputeRisk(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := s.decode(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Optimize(r.Context(), chi.URLParam(r, "id"), req.TargetReturn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleStress(w http.ResponseWriter, r *http.Request) {
	results, err := s.svc.StressTest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, results)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	cm, err := s.svc.CorrelationMatrix(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cm)
}
