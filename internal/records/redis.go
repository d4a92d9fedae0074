package records

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nypoclary/lectura-backend/internal/types"
)

// Redis stores each job and user as a hash:
//
//	<prefix>:job:<id>   id owner_id display_name source_artifact_ref status
//	                    result_artifact_ref narration_artifact_ref created_at
//	<prefix>:user:<id>  id learning_style
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "lectura"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Jobs() JobStore   { return redisJobs{r} }
func (r *Redis) Users() UserStore { return redisUsers{r} }

func (r *Redis) jobKey(id string) string  { return fmt.Sprintf("%s:job:%s", r.prefix, id) }
func (r *Redis) userKey(id string) string { return fmt.Sprintf("%s:user:%s", r.prefix, id) }

// Ping checks connectivity; used at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type redisJobs struct{ r *Redis }

func (s redisJobs) Get(ctx context.Context, id string) (types.Job, error) {
	fields, err := s.r.client.HGetAll(ctx, s.r.jobKey(id)).Result()
	if err != nil {
		return types.Job{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return types.Job{}, ErrNotFound
	}
	return jobFromHash(fields)
}

func (s redisJobs) Update(ctx context.Context, id string, u types.JobUpdate) error {
	fields := updateFields(u)
	if len(fields) == 0 {
		return nil
	}
	key := s.r.jobKey(id)
	return s.r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
}

func (s redisJobs) Create(ctx context.Context, job types.Job) error {
	if job.Status == "" {
		job.Status = types.StatusPending
	}
	key := s.r.jobKey(job.ID)
	return s.r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, jobToHash(job))
			return nil
		})
		return err
	}, key)
}

func (s redisJobs) Rearm(ctx context.Context, id string, at time.Time) error {
	return s.Update(ctx, id, RearmUpdate(at))
}

type redisUsers struct{ r *Redis }

func (s redisUsers) Get(ctx context.Context, id string) (types.User, error) {
	fields, err := s.r.client.HGetAll(ctx, s.r.userKey(id)).Result()
	if err != nil {
		return types.User{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return types.User{}, ErrNotFound
	}
	return types.User{
		ID:            id,
		LearningStyle: types.ParseLearningStyle(fields["learning_style"]),
	}, nil
}

func (s redisUsers) Put(ctx context.Context, u types.User) error {
	return s.r.client.HSet(ctx, s.r.userKey(u.ID), map[string]any{
		"id":             u.ID,
		"learning_style": string(u.LearningStyle),
	}).Err()
}

func jobToHash(j types.Job) map[string]any {
	return map[string]any{
		"id":                     j.ID,
		"owner_id":               j.OwnerID,
		"display_name":           j.DisplayName,
		"source_artifact_ref":    j.SourceArtifactRef,
		"status":                 string(j.Status),
		"result_artifact_ref":    j.ResultArtifactRef,
		"narration_artifact_ref": j.NarrationArtifactRef,
		"created_at":             j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func jobFromHash(f map[string]string) (types.Job, error) {
	j := types.Job{
		ID:                   f["id"],
		OwnerID:              f["owner_id"],
		DisplayName:          f["display_name"],
		SourceArtifactRef:    f["source_artifact_ref"],
		Status:               types.JobStatus(f["status"]),
		ResultArtifactRef:    f["result_artifact_ref"],
		NarrationArtifactRef: f["narration_artifact_ref"],
	}
	if raw := f["created_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return types.Job{}, fmt.Errorf("parse created_at: %w", err)
		}
		j.CreatedAt = t
	}
	return j, nil
}

func updateFields(u types.JobUpdate) map[string]any {
	f := map[string]any{}
	if u.Status != nil {
		f["status"] = string(*u.Status)
	}
	if u.ResultArtifactRef != nil {
		f["result_artifact_ref"] = *u.ResultArtifactRef
	}
	if u.NarrationArtifactRef != nil {
		f["narration_artifact_ref"] = *u.NarrationArtifactRef
	}
	if u.CreatedAt != nil {
		f["created_at"] = u.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return f
}
