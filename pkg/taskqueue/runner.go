package taskqueue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// runTask 执行一次任务并维护状态
// 成功时标记完成；不可重试或重试次数用尽时标记失败，否则退回等待状态
func runTask(ctx context.Context, q Queue, h Handler, task *Task, logger *logrus.Logger) error {
	fields := logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
		"job_id":    task.JobID,
		"attempt":   task.Attempts + 1,
	}

	if err := q.UpdateTaskStatus(ctx, task.ID, StatusProcessing, ""); err != nil {
		logger.WithError(err).WithFields(fields).Error("Failed to update task status to processing")
	}

	start := time.Now()
	err := h.ProcessTask(ctx, task)
	fields["duration"] = time.Since(start).String()

	if err == nil {
		if uerr := q.UpdateTaskStatus(ctx, task.ID, StatusCompleted, ""); uerr != nil {
			logger.WithError(uerr).WithFields(fields).Error("Failed to update task status after completion")
		}
		logger.WithFields(fields).Info("Task completed")
		return nil
	}

	status := StatusPending
	if IsPermanent(err) || task.Attempts+1 > task.MaxRetries {
		status = StatusFailed
	}
	if uerr := q.UpdateTaskStatus(ctx, task.ID, status, err.Error()); uerr != nil {
		logger.WithError(uerr).WithFields(fields).Error("Failed to update task status after failure")
	}
	logger.WithError(err).WithFields(fields).WithField("status", status).Warn("Task failed")

	return err
}

// applyStatus 更新任务的状态字段
func applyStatus(task *Task, status TaskStatus, errMsg string) {
	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	switch status {
	case StatusProcessing:
		task.Attempts++
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case StatusCompleted, StatusFailed:
		task.CompletedAt = &now
	}

	if errMsg != "" {
		task.Error = errMsg
	}
}

func newTask(taskType TaskType, taskID, jobID string, payload []byte, maxRetries int) *Task {
	now := time.Now()
	return &Task{
		ID:         taskID,
		Type:       taskType,
		JobID:      jobID,
		Status:     StatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: maxRetries,
	}
}
