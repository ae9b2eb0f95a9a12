package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/handler"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	service_mocks "github.com/Astemirdum/lending-service/internal/handler/mocks"
)

func TestHandler_CreateBorrowRequest(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLendingService)

	var tests = []struct {
		name           string
		body           string
		idempotencyKey string
		mockBehavior   mockBehavior
		response       response
	}{
		{
			name: "ok",
			body: `{"userId":7,"bookId":3}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					CreateBorrowRequest(context.Background(), model.CreateBorrowRequestInput{
						UserID: 7, BookID: 3,
					}).
					Return(model.BorrowRequest{
						ID: 11, UserID: 7, BookID: 3, Status: model.RequestPending,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":11,"userId":7,"bookId":3,"status":"PENDING","requestedAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:           "idempotency header forwarded",
			body:           `{"userId":7,"bookId":3}`,
			idempotencyKey: "req-abc",
			mockBehavior: func(r *service_mocks.MockLendingService) {
				key := "req-abc"
				r.EXPECT().
					CreateBorrowRequest(context.Background(), model.CreateBorrowRequestInput{
						UserID: 7, BookID: 3, IdempotencyKey: &key,
					}).
					Return(model.BorrowRequest{
						ID: 11, UserID: 7, BookID: 3, Status: model.RequestPending,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":11,"userId":7,"bookId":3,"status":"PENDING","requestedAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:         "err. userId required",
			body:         `{"bookId":3}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
		{
			name: "err. out of stock",
			body: `{"userId":7,"bookId":3}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					CreateBorrowRequest(context.Background(), gomock.Any()).
					Return(model.BorrowRequest{}, errs.ErrOutOfStock)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"no available copies"}`,
			},
		},
		{
			name: "err. ineligible",
			body: `{"userId":7,"bookId":3}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					CreateBorrowRequest(context.Background(), gomock.Any()).
					Return(model.BorrowRequest{}, errors.Wrap(errs.ErrIneligible, "outstanding fines"))
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"outstanding fines: user is not eligible"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLendingService(c)
			tt.mockBehavior(svc)

			e := newTestRouter(svc)
			r := httptest.NewRequest(http.MethodPost, "/api/v1/borrow-requests", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			if tt.idempotencyKey != "" {
				r.Header.Set("X-Idempotency-Key", tt.idempotencyKey)
			}
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_ApproveBorrowRequest(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLendingService)

	var tests = []struct {
		name         string
		target       string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:   "ok",
			target: "/api/v1/borrow-requests/11/approve",
			body:   `{"adminId":99}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					ApproveBorrowRequest(context.Background(), model.ResolveRequestInput{
						RequestID: 11, AdminID: 99,
					}).
					Return(model.BorrowRequest{
						ID: 11, UserID: 7, BookID: 3, Status: model.RequestApproved,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":11,"userId":7,"bookId":3,"status":"APPROVED","requestedAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:         "err. invalid id",
			target:       "/api/v1/borrow-requests/abc/approve",
			body:         `{"adminId":99}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"invalid id"}`,
			},
		},
		{
			name:   "err. already processed",
			target: "/api/v1/borrow-requests/11/approve",
			body:   `{"adminId":99}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					ApproveBorrowRequest(context.Background(), gomock.Any()).
					Return(model.BorrowRequest{}, errs.ErrAlreadyProcessed)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"request already processed"}`,
			},
		},
		{
			name:   "err. not found",
			target: "/api/v1/borrow-requests/777/approve",
			body:   `{"adminId":99}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					ApproveBorrowRequest(context.Background(), gomock.Any()).
					Return(model.BorrowRequest{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLendingService(c)
			tt.mockBehavior(svc)

			e := newTestRouter(svc)
			r := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_PaymentWebhook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
	}
	type mockBehavior func(r *service_mocks.MockLendingService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "completed",
			body: `{"eventType":"payment.completed","paymentRef":"ref-1","transactionId":"gw-1"}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					CompletePayment(context.Background(), "ref-1", "gw-1").
					Return(model.PaymentTransaction{ID: 5, Status: model.PaymentCompleted}, nil)
			},
			response: response{expectedCode: http.StatusOK},
		},
		{
			name: "failed",
			body: `{"eventType":"payment.failed","paymentRef":"ref-1","reason":"card declined"}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					HandleFailedPayment(context.Background(), "ref-1", "card declined").
					Return(nil)
			},
			response: response{expectedCode: http.StatusOK},
		},
		{
			name:         "err. unknown event type",
			body:         `{"eventType":"payment.exploded","paymentRef":"ref-1"}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name: "err. completed after failure",
			body: `{"eventType":"payment.completed","paymentRef":"ref-1","transactionId":"gw-1"}`,
			mockBehavior: func(r *service_mocks.MockLendingService) {
				r.EXPECT().
					CompletePayment(context.Background(), "ref-1", "gw-1").
					Return(model.PaymentTransaction{}, errs.ErrInvalidTransition)
			},
			response: response{expectedCode: http.StatusConflict},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLendingService(c)
			tt.mockBehavior(svc)

			e := newTestRouter(svc)
			r := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
		})
	}
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	e := newTestRouter(service_mocks.NewMockLendingService(c))

	r := httptest.NewRequest(http.MethodGet, "/manage/health", http.NoBody)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func newTestRouter(svc handler.LendingService) *echo.Echo {
	return handler.New(svc, zap.NewNop()).NewRouter()
}
