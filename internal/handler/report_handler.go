package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/repository"
)

// ReportRunner fires one daily report outside its schedule.
type ReportRunner interface {
	RunManually(ctx context.Context, jobName string) (*domain.ReportRunLog, error)
}

type ReportHandler struct {
	runner    ReportRunner
	runLogs   repository.RunLogRepository
	schedules repository.ScheduleRepository
}

func NewReportHandler(runner ReportRunner, runLogs repository.RunLogRepository, schedules repository.ScheduleRepository) (*ReportHandler, error) {
	if runner == nil {
		return nil, fmt.Errorf("report runner is required")
	}
	if runLogs == nil {
		return nil, fmt.Errorf("run log repository is required")
	}
	if schedules == nil {
		return nil, fmt.Errorf("schedule repository is required")
	}
	return &ReportHandler{runner: runner, runLogs: runLogs, schedules: schedules}, nil
}

func RegisterReportRoutes(router fiber.Router, runner ReportRunner, runLogs repository.RunLogRepository, schedules repository.ScheduleRepository) error {
	h, err := NewReportHandler(runner, runLogs, schedules)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/reports/logs", h.ListRunLogs)
	v1.Post("/reports/:job/run", h.RunReport)
	v1.Get("/reports/schedule", h.GetSchedule)
	v1.Put("/reports/schedule", h.UpdateSchedule)

	return nil
}

type runLogResponse struct {
	ID           int64      `json:"id"`
	RunDate      string     `json:"runDate"`
	JobName      string     `json:"jobName"`
	FileName     string     `json:"fileName,omitempty"`
	Status       string     `json:"status"`
	GeneratedAt  time.Time  `json:"generatedAt"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
}

type scheduleResponse struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type updateScheduleRequest struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (h *ReportHandler) ListRunLogs(c *fiber.Ctx) error {
	logs, err := h.runLogs.ListRecent(c.Context(), defaultListLimit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]runLogResponse, 0, len(logs))
	for i := range logs {
		responses = append(responses, toRunLogResponse(&logs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func (h *ReportHandler) RunReport(c *fiber.Ctx) error {
	jobName := strings.TrimSpace(c.Params("job"))

	log, err := h.runner.RunManually(c.Context(), jobName)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRunLogResponse(log))
}

func (h *ReportHandler) GetSchedule(c *fiber.Ctx) error {
	schedule, err := h.schedules.Get(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(scheduleResponse{
		Hour:   schedule.Hour,
		Minute: schedule.Minute,
	})
}

func (h *ReportHandler) UpdateSchedule(c *fiber.Ctx) error {
	var req updateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	schedule, err := h.schedules.Update(c.Context(), req.Hour, req.Minute)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(scheduleResponse{
		Hour:   schedule.Hour,
		Minute: schedule.Minute,
	})
}

func toRunLogResponse(l *domain.ReportRunLog) runLogResponse {
	if l == nil {
		return runLogResponse{}
	}

	return runLogResponse{
		ID:           l.ID,
		RunDate:      l.RunDate.Format("2006-01-02"),
		JobName:      l.JobName,
		FileName:     l.FileName,
		Status:       l.Status.String(),
		GeneratedAt:  l.GeneratedAt,
		SentAt:       l.SentAt,
		ErrorMessage: l.ErrorMessage,
	}
}
