package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/repository"
)

const defaultListLimit = 50

// EmailSender is the producer surface exposed over HTTP.
type EmailSender interface {
	Enqueue(ctx context.Context, recipient, subject, body string, kind domain.ContentKind) (*domain.EmailMessage, error)
	Broadcast(ctx context.Context, subject, message string) (int, error)
}

// SweepRunner triggers one delivery sweep on demand.
type SweepRunner interface {
	ProcessPending(ctx context.Context) (int, error)
}

type EmailHandler struct {
	sender  EmailSender
	emails  repository.EmailRepository
	sweeper SweepRunner
}

func NewEmailHandler(sender EmailSender, emails repository.EmailRepository, sweeper SweepRunner) (*EmailHandler, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if emails == nil {
		return nil, fmt.Errorf("email repository is required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	return &EmailHandler{sender: sender, emails: emails, sweeper: sweeper}, nil
}

func RegisterEmailRoutes(router fiber.Router, sender EmailSender, emails repository.EmailRepository, sweeper SweepRunner) error {
	h, err := NewEmailHandler(sender, emails, sweeper)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/emails", h.CreateEmail)
	v1.Post("/emails/broadcast", h.Broadcast)
	v1.Get("/emails", h.ListEmails)
	v1.Post("/emails/process", h.ProcessPending)
	v1.Delete("/emails", h.ClearEmails)

	return nil
}

type createEmailRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
}

type broadcastRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type emailResponse struct {
	ID            int64      `json:"id"`
	Recipient     string     `json:"recipient"`
	Subject       string     `json:"subject"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	RetryCount    int        `json:"retryCount"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastError     *string    `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt,omitempty"`
}

func (h *EmailHandler) CreateEmail(c *fiber.Ctx) error {
	var req createEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	kind := domain.ContentKindPlain
	if strings.TrimSpace(req.Kind) != "" {
		parsed, err := domain.ParseContentKindFromString(req.Kind)
		if err != nil {
			return toHTTPError(err)
		}
		kind = parsed
	}

	record, err := h.sender.Enqueue(
		c.Context(),
		strings.TrimSpace(req.Recipient),
		strings.TrimSpace(req.Subject),
		req.Body,
		kind,
	)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toEmailResponse(record))
}

func (h *EmailHandler) Broadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Subject) == "" {
		return toHTTPError(fmt.Errorf("%w: subject is required", domain.ErrValidation))
	}
	if strings.TrimSpace(req.Message) == "" {
		return toHTTPError(fmt.Errorf("%w: message is required", domain.ErrValidation))
	}

	count, err := h.sender.Broadcast(c.Context(), strings.TrimSpace(req.Subject), req.Message)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"recipients": count,
	})
}

func (h *EmailHandler) ListEmails(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > 200 {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and 200", domain.ErrValidation))
	}

	var (
		records []domain.EmailMessage
		err     error
	)
	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, parseErr := domain.ParseEmailStatusFromString(rawStatus)
		if parseErr != nil {
			return toHTTPError(parseErr)
		}
		records, err = h.emails.FindByStatusIn(c.Context(), []domain.EmailStatus{status}, limit)
	} else {
		records, err = h.emails.ListRecent(c.Context(), limit)
	}
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]emailResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toEmailResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func (h *EmailHandler) ProcessPending(c *fiber.Ctx) error {
	processed, err := h.sweeper.ProcessPending(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"processed": processed,
	})
}

// ClearEmails wipes the whole delivery history, terminal and pending records
// alike. Operator-only housekeeping.
func (h *EmailHandler) ClearEmails(c *fiber.Ctx) error {
	if err := h.emails.Clear(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func toEmailResponse(m *domain.EmailMessage) emailResponse {
	if m == nil {
		return emailResponse{}
	}

	return emailResponse{
		ID:            m.ID,
		Recipient:     m.Recipient,
		Subject:       m.Subject,
		Kind:          m.Kind.String(),
		Status:        m.Status.String(),
		SentAt:        m.SentAt,
		RetryCount:    m.RetryCount,
		LastAttemptAt: m.LastAttemptAt,
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
