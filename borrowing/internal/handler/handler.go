package handler

import (
	"net/http"

	md "github.com/Astemirdum/borrow-service/pkg/middleware"

	"github.com/Astemirdum/borrow-service/borrowing/internal/errs"
	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"github.com/Astemirdum/borrow-service/pkg/auth"
	"github.com/Astemirdum/borrow-service/pkg/validate"
	_ "github.com/Astemirdum/borrow-service/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

type Handler struct {
	borrowingSvc BorrowingService
	log          *zap.Logger
}

func New(borrowingSvc BorrowingService, log *zap.Logger) *Handler {
	return &Handler{
		borrowingSvc: borrowingSvc,
		log:          log,
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
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		md.JwtAuthentication,
	)

	api.POST("/requests", h.CreateRequest)
	api.GET("/requests", h.GetMyRequests)
	api.POST("/requests/:requestUid/cancel", h.CancelRequest)

	api.GET("/borrowings", h.GetMyBorrowings)
	api.GET("/borrowings/history", h.GetMyHistory)
	api.POST("/borrowings/:borrowingUid/return", h.ReturnBorrowing)

	api.GET("/books/:bookUid/availability", h.CheckAvailability)

	admin := api.Group("", md.AdminOnly)
	admin.GET("/requests/pending", h.GetPendingRequests)
	admin.POST("/requests/:requestUid/process", h.ProcessRequest)
	admin.GET("/borrowings/overdue", h.GetOverdue)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// CreateRequest godoc
// @Summary create a borrow request for a book
// @Tags requests
// @Param request body model.CreateBorrowRequest true "request"
// @Success 200 {object} model.BorrowRequest
// @Failure 400 {object} errs.ValidationErrorResponse
// @Router /api/v1/requests [post]
func (h *Handler) CreateRequest(c echo.Context) error {
	id, err := auth.FromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req model.CreateBorrowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Username = id.Username
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.borrowingSvc.CreateRequest(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// CancelRequest godoc
// @Summary cancel an own pending request
// @Tags requests
// @Param requestUid path string true "request uid"
// @Success 200 {object} model.BorrowRequest
// @Router /api/v1/requests/{requestUid}/cancel [post]
func (h *Handler) CancelRequest(c echo.Context) error {
	id, err := auth.FromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	requestUid := c.Param("requestUid")
	if requestUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	res, err := h.borrowingSvc.CancelRequest(c.Request().Context(), requestUid, id.Username)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ProcessRequest godoc
// @Summary approve or reject a pending request (admin)
// @Tags requests
// @Param requestUid path string true "request uid"
// @Param request body model.ProcessRequest true "decision"
// @Success 200 {object} model.ProcessResult
// @Failure 400 {object} errs.ValidationErrorResponse
// @Router /api/v1/requests/{requestUid}/process [post]
func (h *Handler) ProcessRequest(c echo.Context) error {
	requestUid := c.Param("requestUid")
	if requestUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	var req model.ProcessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.borrowingSvc.ProcessRequest(c.Request().Context(), requestUid, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ReturnBorrowing godoc
// @Summary return a borrowed copy
// @Tags borrowings
// @Param borrowingUid path string true "borrowing uid"
// @Param request body model.ReturnRequest false "notes"
// @Success 200 {object} model.BorrowingView
// @Router /api/v1/borrowings/{borrowingUid}/return [post]
func (h *Handler) ReturnBorrowing(c echo.Context) error {
	id, err := auth.FromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	borrowingUid := c.Param("borrowingUid")
	if borrowingUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "borrowingUid is empty")
	}
	var req model.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.borrowingSvc.ReturnBorrowing(c.Request().Context(), borrowingUid, id, req.ReturnNotes)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// CheckAvailability godoc
// @Summary current copy availability for a book
// @Tags books
// @Param bookUid path string true "book uid"
// @Success 200 {object} model.Availability
// @Router /api/v1/books/{bookUid}/availability [get]
func (h *Handler) CheckAvailability(c echo.Context) error {
	bookUid := c.Param("bookUid")
	if bookUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bookUid is empty")
	}
	av, err := h.borrowingSvc.CheckAvailability(c.Request().Context(), bookUid)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, av)
}

func (h *Handler) GetMyRequests(c echo.Context) error {
	id, err := auth.FromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	items, err := h.borrowingSvc.ListRequests(c.Request().Context(), id.Username)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetMyBorrowings(c echo.Context) error {
	return h.listBorrowings(c, false)
}

func (h *Handler) GetMyHistory(c echo.Context) error {
	return h.listBorrowings(c, true)
}

func (h *Handler) listBorrowings(c echo.Context, history bool) error {
	id, err := auth.FromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	items, err := h.borrowingSvc.ListBorrowings(c.Request().Context(), id.Username, history)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPendingRequests(c echo.Context) error {
	items, err := h.borrowingSvc.ListPendingRequests(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetOverdue(c echo.Context) error {
	items, err := h.borrowingSvc.ListOverdue(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func toHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrBookNotFound), errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidDuration), errors.Is(err, errs.ErrMissingReason):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrDuplicateRequest),
		errors.Is(err, errs.ErrInvalidState),
		errors.Is(err, errs.ErrNoCopiesAvailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrStorageUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
