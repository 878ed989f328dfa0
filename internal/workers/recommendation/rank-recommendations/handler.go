// internal/workers/recommendation/rank-recommendations/handler.go
package rankrecommendations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/common/metrics"
	"recommend-workers/internal/common/validation"
	"recommend-workers/internal/recommendation/pipeline"
)

const (
	TaskType = "rank-recommendations"
)

// Recommender is the part of the pipeline the worker drives.
type Recommender interface {
	Run(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error)
	RunSections(ctx context.Context, req *pipeline.SectionsRequest) (*pipeline.SectionsResponse, error)
}

type Handler struct {
	config      *Config
	recommender Recommender
	errors      *errors.ErrorHandler
	logger      logger.Logger
}

func NewHandler(config *Config, recommender Recommender, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:      config,
		recommender: recommender,
		errors:      errors.NewErrorHandler(log),
		logger:      log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	taste, err := validation.ParseTasteProfile(input.TasteProfile)
	if err != nil {
		return nil, err
	}
	req := input.toRequest(taste)

	if input.Sections {
		resp, err := h.recommender.RunSections(ctx, &pipeline.SectionsRequest{Request: req, Keys: input.SectionKeys})
		if err != nil {
			return nil, err
		}
		count := 0
		for _, s := range resp.Sections {
			count += len(s.Items)
		}
		h.logger.Info("sections ranked", map[string]interface{}{
			"requestId": resp.RequestID,
			"sections":  len(resp.Sections),
			"items":     count,
		})
		return &Output{RequestID: resp.RequestID, Sections: resp.Sections, ResultCount: count}, nil
	}

	resp, err := h.recommender.Run(ctx, &req)
	if err != nil {
		return nil, err
	}

	h.logger.Info("recommendations ranked", map[string]interface{}{
		"requestId": resp.RequestID,
		"category":  req.Category,
		"returned":  len(resp.Results),
		"total":     resp.Total,
	})

	page := resp.Page
	return &Output{RequestID: resp.RequestID, Page: &page, ResultCount: len(page.Results)}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// failJob throws a BPMN error for invalid requests and fails with retries
// for backend errors.
func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
