package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/pdf-splitter/internal/cache"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"github.com/fyerfyer/pdf-splitter/internal/repository"
	"github.com/fyerfyer/pdf-splitter/pkg/storage"
	"github.com/fyerfyer/pdf-splitter/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SubmitJobRequest 异步拆分任务的提交内容
// Table 为空时按普通拆分处理
type SubmitJobRequest struct {
	DocumentName string
	Document     []byte
	TableName    string
	Table        []byte
	Pattern      string
	KeyColumn    string
	ValueColumn  string
}

// JobService 异步拆分任务服务
// 负责保存输入、创建任务记录、入队以及查询和下载结果
type JobService struct {
	splitter *SplitService            // 用于提交前校验输入
	storage  storage.Storage          // 输入文件和结果存储
	repo     repository.JobRepository // 任务记录
	queue    taskqueue.Queue          // 任务队列
	cache    cache.Cache              // 重复提交检测
	dedupTTL time.Duration            // 重复提交检测窗口
	logger   *logrus.Logger           // 日志记录器
}

// JobOption 任务服务配置选项
type JobOption func(*JobService)

// NewJobService 创建任务服务
func NewJobService(
	splitter *SplitService,
	store storage.Storage,
	repo repository.JobRepository,
	queue taskqueue.Queue,
	opts ...JobOption,
) *JobService {
	srv := &JobService{
		splitter: splitter,
		storage:  store,
		repo:     repo,
		queue:    queue,
		dedupTTL: time.Hour,
		logger:   logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithJobLogger 设置日志记录器
func WithJobLogger(logger *logrus.Logger) JobOption {
	return func(s *JobService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubmissionCache 启用重复提交检测，ttl内相同的输入返回已有任务
func WithSubmissionCache(c cache.Cache, ttl time.Duration) JobOption {
	return func(s *JobService) {
		s.cache = c
		if ttl > 0 {
			s.dedupTTL = ttl
		}
	}
}

// Submit 校验输入并创建任务
// 第二个返回值表示是否复用了已有任务
func (s *JobService) Submit(ctx context.Context, req SubmitJobRequest) (*models.SplitJob, bool, error) {
	mode := models.ModePlain
	if req.TableName != "" {
		mode = models.ModeRename
	}

	// 输入错误在提交时直接返回，不进入队列
	if err := s.validate(req, mode); err != nil {
		return nil, false, err
	}

	jobID := uuid.New().String()
	key := cache.SubmissionKey(req.Document, req.Table,
		string(mode), req.Pattern, req.KeyColumn, req.ValueColumn, req.TableName)

	if existing := s.claimSubmission(ctx, key, jobID); existing != nil {
		return existing, true, nil
	}

	job, err := s.createJob(ctx, jobID, mode, req)
	if err != nil {
		s.releaseSubmission(ctx, key)
		return nil, false, err
	}

	return job, false, nil
}

func (s *JobService) validate(req SubmitJobRequest, mode models.JobMode) error {
	if mode == models.ModeRename {
		_, _, err := s.splitter.prepareRename(RenameSplitRequest{
			DocumentName: req.DocumentName,
			TableName:    req.TableName,
			Table:        req.Table,
			Pattern:      req.Pattern,
			KeyColumn:    req.KeyColumn,
			ValueColumn:  req.ValueColumn,
		})
		return err
	}

	if err := validateDocument(req.DocumentName); err != nil {
		return err
	}
	_, err := compilePattern(req.Pattern)
	return err
}

// claimSubmission 记录本次提交，已有相同且未失败的任务时返回该任务
func (s *JobService) claimSubmission(ctx context.Context, key, jobID string) *models.SplitJob {
	if s.cache == nil {
		return nil
	}

	claimed, err := s.cache.SetNX(ctx, key, jobID, s.dedupTTL)
	if err != nil {
		s.logger.WithError(err).Warn("Submission cache unavailable")
		return nil
	}
	if claimed {
		return nil
	}

	existingID, found, err := s.cache.Get(ctx, key)
	if err == nil && found {
		job, err := s.repo.GetByID(ctx, existingID)
		if err == nil && job.Status != models.JobStatusFailed {
			s.logger.WithFields(logrus.Fields{
				"job_id": job.ID,
				"status": job.Status,
			}).Info("Duplicate submission, returning existing job")
			return job
		}
	}

	// 之前的任务已失败或已删除，改为记录本次提交
	if err := s.cache.Set(ctx, key, jobID, s.dedupTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to record submission")
	}
	return nil
}

func (s *JobService) releaseSubmission(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.WithError(err).Warn("Failed to release submission")
	}
}

func (s *JobService) createJob(ctx context.Context, jobID string, mode models.JobMode, req SubmitJobRequest) (*models.SplitJob, error) {
	docInfo, err := s.storage.Save(ctx, bytes.NewReader(req.Document), req.DocumentName)
	if err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	job := &models.SplitJob{
		ID:          jobID,
		Mode:        mode,
		FileName:    req.DocumentName,
		DocumentID:  docInfo.ID,
		Pattern:     req.Pattern,
		KeyColumn:   req.KeyColumn,
		ValueColumn: req.ValueColumn,
		Status:      models.JobStatusPending,
	}

	if mode == models.ModeRename {
		tableInfo, err := s.storage.Save(ctx, bytes.NewReader(req.Table), req.TableName)
		if err != nil {
			s.removeFiles(ctx, docInfo.ID)
			return nil, fmt.Errorf("failed to save table: %w", err)
		}
		job.TableFile = req.TableName
		job.TableID = tableInfo.ID
	}

	if err := s.repo.Create(ctx, job); err != nil {
		s.removeFiles(ctx, job.DocumentID, job.TableID)
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	payload := taskqueue.SplitPayload{
		JobID:        job.ID,
		DocumentID:   job.DocumentID,
		DocumentName: job.FileName,
		TableID:      job.TableID,
		TableName:    job.TableFile,
		Pattern:      job.Pattern,
		KeyColumn:    job.KeyColumn,
		ValueColumn:  job.ValueColumn,
	}

	taskID, err := s.queue.Enqueue(ctx, payload.TaskTypeFor(), job.ID, payload)
	if err != nil {
		if merr := s.repo.MarkFailed(ctx, job.ID, models.KindInternal, "failed to enqueue job"); merr != nil {
			s.logger.WithError(merr).WithField("job_id", job.ID).Error("Failed to mark job as failed")
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	// 任务可能已经开始执行，只补充记录任务ID
	if err := s.repo.SetTaskID(ctx, job.ID, taskID); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to record task id")
	}
	job.TaskID = taskID

	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"task_id":  taskID,
		"mode":     mode,
		"document": req.DocumentName,
	}).Info("Split job submitted")

	return job, nil
}

// Get 获取任务
func (s *JobService) Get(ctx context.Context, id string) (*models.SplitJob, error) {
	return s.repo.GetByID(ctx, id)
}

// List 分页列出任务，page从1开始
func (s *JobService) List(ctx context.Context, page, pageSize int, status models.JobStatus) ([]*models.SplitJob, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.repo.List(ctx, (page-1)*pageSize, pageSize, status)
}

// OpenArchive 打开已完成任务的压缩包
func (s *JobService) OpenArchive(ctx context.Context, id string) (*models.SplitJob, io.ReadCloser, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != models.JobStatusCompleted || job.ArchiveID == "" {
		return job, nil, fmt.Errorf("%w: job %s is %s", models.ErrJobNotReady, id, job.Status)
	}

	rc, err := s.storage.Get(ctx, job.ArchiveID)
	if err != nil {
		return job, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return job, rc, nil
}

// Delete 删除任务记录、队列任务和所有相关文件
func (s *JobService) Delete(ctx context.Context, id string) error {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if tasks, err := s.queue.GetTasksByJob(ctx, id); err == nil {
		for _, task := range tasks {
			if err := s.queue.DeleteTask(ctx, task.ID); err != nil {
				s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete queued task")
			}
		}
	}

	s.removeFiles(ctx, job.DocumentID, job.TableID, job.ArchiveID)

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.WithField("job_id", id).Info("Split job deleted")
	return nil
}

func (s *JobService) removeFiles(ctx context.Context, ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := s.storage.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithError(err).WithField("file_id", id).Warn("Failed to delete stored file")
		}
	}
}

// JobNames 解码任务记录中的页面名称
func JobNames(job *models.SplitJob) []string {
	if len(job.Names) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(job.Names, &names); err != nil {
		return nil
	}
	return names
}

// JobProcessor 在队列中执行拆分任务
type JobProcessor struct {
	splitter *SplitService
	storage  storage.Storage
	repo     repository.JobRepository
	logger   *logrus.Logger
}

// NewJobProcessor 创建任务处理器
func NewJobProcessor(splitter *SplitService, store storage.Storage, repo repository.JobRepository, logger *logrus.Logger) *JobProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	return &JobProcessor{
		splitter: splitter,
		storage:  store,
		repo:     repo,
		logger:   logger,
	}
}

// GetTaskTypes 返回支持的任务类型
func (p *JobProcessor) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskSplitPlain, taskqueue.TaskSplitRename}
}

// ProcessTask 读取输入、执行拆分并保存结果
// 输入本身有问题时标记失败且不重试，内部错误交给队列重试
func (p *JobProcessor) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.SplitPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return taskqueue.Permanent(err)
	}

	log := p.logger.WithFields(logrus.Fields{
		"job_id":  payload.JobID,
		"task_id": task.ID,
	})

	if err := p.repo.MarkProcessing(ctx, payload.JobID); err != nil {
		if errors.Is(err, models.ErrInvalidJobStatus) {
			log.Info("Job already finished, skipping")
			return nil
		}
		if errors.Is(err, models.ErrJobNotFound) {
			return taskqueue.Permanent(err)
		}
		return err
	}

	result, err := p.run(ctx, payload)
	if err != nil {
		kind := models.KindOf(err)
		lastAttempt := task.Attempts+1 > task.MaxRetries
		if kind != models.KindInternal || lastAttempt {
			if merr := p.repo.MarkFailed(ctx, payload.JobID, kind, err.Error()); merr != nil {
				log.WithError(merr).Error("Failed to mark job as failed")
			}
		}
		log.WithError(err).WithField("error_kind", kind).Warn("Split job failed")

		if kind != models.KindInternal {
			return taskqueue.Permanent(err)
		}
		return err
	}

	info, err := p.storage.Save(ctx, bytes.NewReader(result.Archive), payload.JobID+".zip")
	if err != nil {
		return fmt.Errorf("failed to save archive: %w", err)
	}

	if err := p.repo.MarkCompleted(ctx, payload.JobID, repository.JobResult{
		PageCount:   result.PageCount,
		Names:       result.Names,
		ArchiveID:   info.ID,
		ArchiveSize: info.Size,
	}); err != nil {
		// 任务在处理期间被删除时清理刚保存的压缩包
		if derr := p.storage.Delete(ctx, info.ID); derr != nil {
			log.WithError(derr).Warn("Failed to remove orphaned archive")
		}
		if errors.Is(err, models.ErrJobNotFound) {
			return taskqueue.Permanent(err)
		}
		return err
	}

	log.WithFields(logrus.Fields{
		"pages":   result.PageCount,
		"archive": info.Size,
	}).Info("Split job completed")
	return nil
}

func (p *JobProcessor) run(ctx context.Context, payload taskqueue.SplitPayload) (*SplitResult, error) {
	doc, err := storage.ReadAll(ctx, p.storage, payload.DocumentID)
	if err != nil {
		return nil, models.NewPipelineError(models.KindInternal, "failed to load document", err)
	}

	if payload.TableID == "" {
		return p.splitter.RunPlainSplit(ctx, PlainSplitRequest{
			DocumentName: payload.DocumentName,
			Document:     doc,
			Pattern:      payload.Pattern,
		})
	}

	table, err := storage.ReadAll(ctx, p.storage, payload.TableID)
	if err != nil {
		return nil, models.NewPipelineError(models.KindInternal, "failed to load table", err)
	}

	return p.splitter.RunSplitAndRename(ctx, RenameSplitRequest{
		DocumentName: payload.DocumentName,
		Document:     doc,
		TableName:    payload.TableName,
		Table:        table,
		Pattern:      payload.Pattern,
		KeyColumn:    payload.KeyColumn,
		ValueColumn:  payload.ValueColumn,
	})
}

var _ taskqueue.Handler = (*JobProcessor)(nil)
