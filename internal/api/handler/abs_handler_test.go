package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

type MockABSService struct {
	mock.Mock
}

func (m *MockABSService) CreditAgent(ctx context.Context, agentID uuid.UUID, amount int64, currency string) (int64, error) {
	args := m.Called(ctx, agentID, amount, currency)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockABSService) DebitAgent(ctx context.Context, agentID uuid.UUID, amount int64, currency string) (int64, error) {
	args := m.Called(ctx, agentID, amount, currency)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockABSService) UpsertRate(ctx context.Context, r *fx.Rate) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func absRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestABSHandler_Credit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := new(MockABSService)
		h := NewABSHandler(testLogger(), mockService)
		agentID := uuid.New()
		mockService.On("CreditAgent", mock.Anything, agentID, int64(50_000), "RUB").
			Return(int64(2_050_000), nil)

		router := absRouter()
		router.POST("/agents/credit", h.Credit)

		body, _ := json.Marshal(AdjustBalanceRequest{
			AgentID:  agentID.String(),
			Amount:   50_000,
			Currency: "RUB",
		})
		req, _ := http.NewRequest(http.MethodPost, "/agents/credit", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(2_050_000), data["balance"])
		mockService.AssertExpectations(t)
	})

	t.Run("UnknownAgent", func(t *testing.T) {
		mockService := new(MockABSService)
		h := NewABSHandler(testLogger(), mockService)
		agentID := uuid.New()
		mockService.On("CreditAgent", mock.Anything, agentID, int64(100), "RUB").
			Return(int64(0), agent.ErrAgentNotFound{AgentID: agentID})

		router := absRouter()
		router.POST("/agents/credit", h.Credit)

		body, _ := json.Marshal(AdjustBalanceRequest{AgentID: agentID.String(), Amount: 100, Currency: "RUB"})
		req, _ := http.NewRequest(http.MethodPost, "/agents/credit", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		h := NewABSHandler(testLogger(), new(MockABSService))
		router := absRouter()
		router.POST("/agents/credit", h.Credit)

		req, _ := http.NewRequest(http.MethodPost, "/agents/credit",
			bytes.NewBufferString(`{"agent_id": "`+uuid.NewString()+`", "amount": -5, "currency": "RUB"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestABSHandler_Debit(t *testing.T) {
	t.Run("InsufficientBalance", func(t *testing.T) {
		mockService := new(MockABSService)
		h := NewABSHandler(testLogger(), mockService)
		agentID := uuid.New()
		mockService.On("DebitAgent", mock.Anything, agentID, int64(100), "RUB").
			Return(int64(0), shared.NewError(shared.CodeInsufficientBalance, "agent balance too low"))

		router := absRouter()
		router.POST("/agents/debit", h.Debit)

		body, _ := json.Marshal(AdjustBalanceRequest{AgentID: agentID.String(), Amount: 100, Currency: "RUB"})
		req, _ := http.NewRequest(http.MethodPost, "/agents/debit", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestABSHandler_UpsertRate(t *testing.T) {
	t.Run("GlobalRate", func(t *testing.T) {
		mockService := new(MockABSService)
		h := NewABSHandler(testLogger(), mockService)
		mockService.On("UpsertRate", mock.Anything, mock.MatchedBy(func(r *fx.Rate) bool {
			return r.AgentID == nil && r.Base == "RUB" && r.Quote == "KZT" && r.Rate.String() == "5.5"
		})).Return(nil)

		router := absRouter()
		router.PUT("/rates", h.UpsertRate)

		body, _ := json.Marshal(UpsertRateRequest{Base: "RUB", Quote: "KZT", Rate: "5.5", Source: "abs"})
		req, _ := http.NewRequest(http.MethodPut, "/rates", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("AgentScopedRate", func(t *testing.T) {
		mockService := new(MockABSService)
		h := NewABSHandler(testLogger(), mockService)
		agentID := uuid.New()
		mockService.On("UpsertRate", mock.Anything, mock.MatchedBy(func(r *fx.Rate) bool {
			return r.AgentID != nil && *r.AgentID == agentID
		})).Return(nil)

		router := absRouter()
		router.PUT("/rates", h.UpsertRate)

		body, _ := json.Marshal(UpsertRateRequest{AgentID: agentID.String(), Base: "RUB", Quote: "KZT", Rate: "5.51"})
		req, _ := http.NewRequest(http.MethodPut, "/rates", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("MalformedRate", func(t *testing.T) {
		h := NewABSHandler(testLogger(), new(MockABSService))
		router := absRouter()
		router.PUT("/rates", h.UpsertRate)

		body, _ := json.Marshal(UpsertRateRequest{Base: "RUB", Quote: "KZT", Rate: "five and a half"})
		req, _ := http.NewRequest(http.MethodPut, "/rates", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
