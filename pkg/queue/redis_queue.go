package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"letterforge/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// JobStatus tracks one generation job. It is diagnostic only: the newsletter
// record, not the job, is the source of truth for generation outcome.
type JobStatus struct {
	ID           string    `json:"id"`
	NewsletterID string    `json:"newsletter_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GenerationQueue dispatches newsletter generation jobs over a redis stream
// with a consumer group. Each job gets exactly one attempt: retry is always
// an explicit user action, never the queue's.
type GenerationQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	retryDelay   time.Duration
	once         sync.Once
}

// Config configures the redis-backed generation queue.
type Config struct {
	Addr      string
	Password  string
	Stream    string
	Group     string
	Consumer  string
	JobTTL    time.Duration
	Block     time.Duration
	ClaimIdle time.Duration
	MaxLen    int64
}

// New builds a GenerationQueue, filling defaults for unset fields.
func New(cfg Config) (*GenerationQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 2 * time.Minute
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}

	return &GenerationQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       jobTTL,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
		readCount:    10,
		claimCount:   10,
		retryDelay:   time.Second,
	}, nil
}

// Enqueue schedules one generation attempt for a newsletter.
func (q *GenerationQueue) Enqueue(ctx context.Context, newsletterID string) (JobStatus, error) {
	newsletterID = strings.TrimSpace(newsletterID)
	if newsletterID == "" {
		return JobStatus{}, errors.New("newsletter id required")
	}
	job := JobStatus{
		ID:           util.NewID(),
		NewsletterID: newsletterID,
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return JobStatus{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":        job.ID,
			"newsletter_id": job.NewsletterID,
		},
	}).Err(); err != nil {
		return JobStatus{}, err
	}
	return job, nil
}

// GetJob returns job diagnostics by ID.
func (q *GenerationQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	return decodeJobStatus(jobID, data), true, nil
}

// Start launches the consumer loops. The handler performs one generation
// attempt; its error is recorded on the job but the job is never requeued.
func (q *GenerationQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, JobStatus) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *GenerationQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("create consumer group", "stream", q.stream, "err", err)
		}
	})
}

func (q *GenerationQueue) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, JobStatus) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimStale(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			// Block is only honored server-side; when redis is unreachable the
			// read fails immediately, so wait before retrying.
			if !errors.Is(err, redis.Nil) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(q.retryDelay):
				}
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *GenerationQueue) claimStale(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *GenerationQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, JobStatus) error) {
	defer q.ackAndDel(ctx, msg.ID)

	jobID, _ := msg.Values["job_id"].(string)
	newsletterID, _ := msg.Values["newsletter_id"].(string)
	if jobID == "" || newsletterID == "" {
		return
	}
	job := q.markStatus(ctx, jobID, newsletterID, StatusProcessing, "")
	if err := handler(ctx, job); err != nil {
		q.markStatus(ctx, jobID, newsletterID, StatusFailed, err.Error())
		return
	}
	q.markStatus(ctx, jobID, newsletterID, StatusDone, "")
}

func (q *GenerationQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *GenerationQueue) markStatus(ctx context.Context, jobID, newsletterID, status, errMsg string) JobStatus {
	job, ok, err := q.GetJob(ctx, jobID)
	if err != nil || !ok {
		job = JobStatus{ID: jobID, CreatedAt: time.Now().UTC()}
	}
	job.NewsletterID = newsletterID
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	if err := q.writeStatus(ctx, job); err != nil {
		slog.Warn("write job status", "job_id", jobID, "err", err)
	}
	return job
}

func (q *GenerationQueue) writeStatus(ctx context.Context, job JobStatus) error {
	payload := map[string]any{
		"id":            job.ID,
		"newsletter_id": job.NewsletterID,
		"status":        job.Status,
		"error":         job.ErrorMessage,
		"created_at":    job.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    job.UpdatedAt.Format(time.RFC3339Nano),
	}
	key := q.jobKey(job.ID)
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	return q.client.Expire(ctx, key, q.jobTTL).Err()
}

func (q *GenerationQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeJobStatus(jobID string, data map[string]string) JobStatus {
	job := JobStatus{ID: jobID}
	job.NewsletterID = data["newsletter_id"]
	job.Status = data["status"]
	job.ErrorMessage = data["error"]
	if v := data["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job
}
