package escrow

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/ledger"
)

// Handler exposes the job money-flow HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds the escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type jobResponse struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	FreelancerID string `json:"freelancer_id,omitempty"`
	Title        string `json:"title,omitempty"`
	Budget       int64  `json:"budget"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
	AwardedAt    string `json:"awarded_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
}

func toJobResponse(j Job) jobResponse {
	resp := jobResponse{
		ID:           j.ID,
		ClientID:     j.ClientID,
		FreelancerID: j.FreelancerID,
		Title:        j.Title,
		Budget:       j.Budget,
		Currency:     j.Currency,
		Status:       string(j.Status),
		CancelReason: j.CancelReason,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339Nano),
	}
	if j.AwardedAt != nil {
		resp.AwardedAt = j.AwardedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.CancelledAt != nil {
		resp.CancelledAt = j.CancelledAt.Format(time.RFC3339Nano)
	}
	return resp
}

func mapError(err error) error {
	var ife *ledger.InsufficientFundsError
	switch {
	case errors.As(err, &ife):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidStateTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}

type createJobRequest struct {
	ClientID string `json:"client_id"`
	Title    string `json:"title"`
	Budget   int64  `json:"budget"`
}

// CreateJob posts a new open job.
func (h *Handler) CreateJob(c *fiber.Ctx) error {
	var req createJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	job, err := h.service.CreateJob(c.UserContext(), CreateJobInput{ClientID: req.ClientID, Title: req.Title, Budget: req.Budget})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toJobResponse(job))
}

// Job fetches a job.
func (h *Handler) Job(c *fiber.Ctx) error {
	job, err := h.service.Job(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toJobResponse(job))
}

type awardRequest struct {
	FreelancerID  string `json:"freelancer_id"`
	PaymentMethod string `json:"payment_method"`
}

// Award assigns the job. With no payment method the response lists the
// available funding paths; with insufficient wallet funds the shortfall is
// returned so the caller can offer an alternative.
func (h *Handler) Award(c *fiber.Ctx) error {
	var req awardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.AwardJob(c.UserContext(), c.Params("jobId"), req.FreelancerID, req.PaymentMethod)
	if err != nil {
		var ife *ledger.InsufficientFundsError
		if errors.As(err, &ife) {
			return c.Status(http.StatusPaymentRequired).JSON(fiber.Map{
				"error":           "insufficient funds",
				"shortfall":       ife.Shortfall(),
				"payment_options": []string{PaymentDeferred},
			})
		}
		return mapError(err)
	}

	if res.RequiresPaymentMethod {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"requires_payment_method": true,
			"payment_options":         res.PaymentOptions,
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"job":         toJobResponse(res.Job),
		"amount_paid": res.AmountPaid,
	})
}

// Complete releases escrow to the freelancer and marks the job completed.
func (h *Handler) Complete(c *fiber.Ctx) error {
	job, err := h.service.CompleteJob(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toJobResponse(job))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel refunds escrow to the client and marks the job cancelled.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	job, err := h.service.CancelJob(c.UserContext(), c.Params("jobId"), req.Reason)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toJobResponse(job))
}
