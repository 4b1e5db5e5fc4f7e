package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/repository"
)

type NotificationHandler struct {
	notifications repository.NotificationRepository
}

func NewNotificationHandler(notifications repository.NotificationRepository) (*NotificationHandler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	return &NotificationHandler{notifications: notifications}, nil
}

func RegisterNotificationRoutes(router fiber.Router, notifications repository.NotificationRepository) error {
	h, err := NewNotificationHandler(notifications)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifications", h.ListNotifications)
	v1.Post("/notifications/:id/read", h.MarkRead)
	v1.Delete("/notifications", h.ClearNotifications)

	return nil
}

type notificationResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	notifications, err := h.notifications.ListRecent(c.Context(), defaultListLimit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: invalid notification id", domain.ErrValidation))
	}

	notification, err := h.notifications.MarkRead(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ClearNotifications(c *fiber.Ctx) error {
	if err := h.notifications.Clear(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Status:    n.Status.String(),
		CreatedAt: n.CreatedAt,
	}
}
