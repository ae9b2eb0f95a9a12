package handler

import (
	"net/http"
	"strconv"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/Astemirdum/lending-service/pkg/validate"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

type Handler struct {
	lendingSvc LendingService
	log        *zap.Logger
}

func New(lendingSvc LendingService, log *zap.Logger) *Handler {
	return &Handler{
		lendingSvc: lendingSvc,
		log:        log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPost},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig(h.log)),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
	)

	api.POST("/borrow-requests", h.CreateBorrowRequest)
	api.POST("/borrow-requests/:id/approve", h.ApproveBorrowRequest)
	api.POST("/borrow-requests/:id/reject", h.RejectBorrowRequest)

	api.POST("/return-requests", h.CreateReturnRequest)
	api.POST("/return-requests/:id/approve", h.ApproveReturnRequest)
	api.POST("/return-requests/:id/reject", h.RejectReturnRequest)

	api.POST("/fines/sweep", h.RunPenaltySweep)
	api.POST("/fines/:id/waive", h.WaiveFine)

	api.POST("/payments", h.InitiatePayment)
	api.POST("/payments/webhook", h.PaymentWebhook)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps core error taxonomy onto HTTP statuses: conflicts for
// duplicates, stock exhaustion and state-machine losers; 404/403/400 for the
// rest.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrOutOfStock),
		errors.Is(err, errs.ErrDuplicateRequest),
		errors.Is(err, errs.ErrAlreadyProcessed),
		errors.Is(err, errs.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrIneligible),
		errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrExternalService):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) CreateBorrowRequest(c echo.Context) error {
	var req model.CreateBorrowRequestInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if key := c.Request().Header.Get(idempotencyKeyHeader); key != "" {
		req.IdempotencyKey = &key
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.lendingSvc.CreateBorrowRequest(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

type resolveRequest struct {
	AdminID int64   `json:"adminId" validate:"required"`
	Notes   *string `json:"notes"`
}

func (h *Handler) resolveInput(c echo.Context) (model.ResolveRequestInput, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return model.ResolveRequestInput{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return model.ResolveRequestInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return model.ResolveRequestInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return model.ResolveRequestInput{RequestID: id, AdminID: req.AdminID, Notes: req.Notes}, nil
}

func (h *Handler) ApproveBorrowRequest(c echo.Context) error {
	in, err := h.resolveInput(c)
	if err != nil {
		return err
	}
	resp, err := h.lendingSvc.ApproveBorrowRequest(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RejectBorrowRequest(c echo.Context) error {
	in, err := h.resolveInput(c)
	if err != nil {
		return err
	}
	resp, err := h.lendingSvc.RejectBorrowRequest(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateReturnRequest(c echo.Context) error {
	var req model.CreateReturnRequestInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.lendingSvc.CreateReturnRequest(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ApproveReturnRequest(c echo.Context) error {
	in, err := h.resolveInput(c)
	if err != nil {
		return err
	}
	resp, err := h.lendingSvc.ApproveReturnRequest(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RejectReturnRequest(c echo.Context) error {
	in, err := h.resolveInput(c)
	if err != nil {
		return err
	}
	resp, err := h.lendingSvc.RejectReturnRequest(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RunPenaltySweep(c echo.Context) error {
	resp, err := h.lendingSvc.RunPenaltySweep(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

type waiveRequest struct {
	AdminID int64  `json:"adminId" validate:"required"`
	Reason  string `json:"reason"`
}

func (h *Handler) WaiveFine(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req waiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.lendingSvc.WaiveFine(c.Request().Context(), id, req.AdminID, req.Reason); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) InitiatePayment(c echo.Context) error {
	var req model.InitiatePaymentInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.lendingSvc.InitiatePayment(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

type paymentWebhook struct {
	EventType     string `json:"eventType" validate:"required,oneof=payment.completed payment.failed"`
	PaymentRef    string `json:"paymentRef" validate:"required"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}

// PaymentWebhook accepts gateway callbacks. Both checkout-session and
// payment-intent events carry the same payment reference and land on the
// same idempotent path.
func (h *Handler) PaymentWebhook(c echo.Context) error {
	var req paymentWebhook
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	switch req.EventType {
	case "payment.completed":
		resp, err := h.lendingSvc.CompletePayment(ctx, req.PaymentRef, req.TransactionID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, resp)
	default:
		if err := h.lendingSvc.HandleFailedPayment(ctx, req.PaymentRef, req.Reason); err != nil {
			return httpError(err)
		}
		return c.NoContent(http.StatusOK)
	}
}
