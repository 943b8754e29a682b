package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/internal/core/service"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

type BookingHandler struct {
	bookings *service.BookingService
	idemp    port.IdempotencyStore
	logger   *logger.Logger
}

func NewBookingHandler(bookings *service.BookingService, idemp port.IdempotencyStore, log *logger.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, idemp: idemp, logger: log}
}

type createBookingRequest struct {
	Category    string `json:"category" binding:"required"`
	ResourceID  string `json:"resource_id" binding:"required"`
	UnitID      string `json:"unit_id"`
	StartDate   string `json:"start_date" binding:"required"`
	EndDate     string `json:"end_date"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	VendorID    string `json:"vendor_id"`
}

type bookingResponse struct {
	BookingNumber string     `json:"booking_number"`
	Category      string     `json:"category"`
	ResourceID    string     `json:"resource_id"`
	UnitID        string     `json:"unit_id,omitempty"`
	StartDate     string     `json:"start_date"`
	EndDate       string     `json:"end_date,omitempty"`
	Quantity      int        `json:"quantity"`
	TotalAmount   int64      `json:"total_amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

func toBookingResponse(res *domain.Reservation) bookingResponse {
	out := bookingResponse{
		BookingNumber: res.BookingNumber,
		Category:      res.Category,
		ResourceID:    res.ResourceID,
		UnitID:        res.UnitID,
		StartDate:     res.StartDate.Format(time.DateOnly),
		Quantity:      res.Quantity,
		TotalAmount:   res.TotalAmount,
		Currency:      res.Currency,
		Status:        string(res.Status),
		PaymentStatus: string(res.PaymentStatus),
		HoldExpiresAt: res.HoldExpiresAt,
	}
	if !res.EndDate.IsZero() {
		out.EndDate = res.EndDate.Format(time.DateOnly)
	}
	return out
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	var end time.Time
	if req.EndDate != "" {
		end, err = time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
			return
		}
	}

	in := service.CreateBookingInput{
		Category:    req.Category,
		ResourceID:  req.ResourceID,
		UnitID:      req.UnitID,
		StartDate:   start,
		EndDate:     end,
		Quantity:    req.Quantity,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		VendorID:    req.VendorID,
	}
	if id := CallerIdentity(c); id != nil {
		in.UserID = id.UserID
	}

	res, err := h.bookings.CreateBooking(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(res))
}

func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	res, err := h.bookings.ConfirmPayment(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(res))
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
	// CreationToken is the idempotency token used when the booking was
	// created. When supplied, its cached response is purged so replays of
	// the original request no longer echo a since-cancelled booking.
	CreationToken string `json:"creation_token"`
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req cancelBookingRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	res, err := h.bookings.CancelBooking(c.Request.Context(), c.Param("number"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if req.CreationToken != "" {
		if _, err := uuid.Parse(req.CreationToken); err == nil {
			key := idempotencyCacheKey(http.MethodPost, "/api/bookings", CallerIdentity(c), req.CreationToken)
			if err := h.idemp.Invalidate(c.Request.Context(), key); err != nil {
				h.logger.Warnw("failed to invalidate creation idempotency record",
					"booking_number", res.BookingNumber, "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, toBookingResponse(res))
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	res, err := h.bookings.GetBooking(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(res))
}

func (h *BookingHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *BookingHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrResourceHeld):
		c.JSON(http.StatusConflict, gin.H{"error": "resource is being booked by someone else, retry shortly", "retryable": true})
	case errors.Is(err, domain.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "no availability for the requested span"})
	case errors.Is(err, domain.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"error": "booking was already resolved"})
	case errors.Is(err, domain.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	default:
		h.logger.Errorw("booking request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
