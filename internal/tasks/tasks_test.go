package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/catalog"
)

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

type fakeRepricer struct {
	calls []string
	err   error
}

func (f *fakeRepricer) Recompute(_ context.Context, id string) (catalog.Product, error) {
	f.calls = append(f.calls, id)
	return catalog.Product{ID: id}, f.err
}

func (f *fakeRepricer) Sync(_ context.Context, id string) (catalog.Product, error) {
	return catalog.Product{ID: id}, f.err
}

func TestEnqueueRecompute(t *testing.T) {
	client := &fakeClient{}
	enq := &Enqueuer{Client: client, MaxRetry: 3, DedupWindow: time.Minute}

	require.NoError(t, enq.EnqueueRecompute(context.Background(), "p1"))
	require.Len(t, client.tasks, 1)
	require.Equal(t, TypeRecompute, client.tasks[0].Type())
	require.Len(t, client.opts[0], 3)

	var payload RecomputePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, "p1", payload.ProductID)
}

func TestEnqueueRecomputeDuplicateIsNotAnError(t *testing.T) {
	enq := &Enqueuer{Client: &fakeClient{err: asynq.ErrDuplicateTask}}
	require.NoError(t, enq.EnqueueRecompute(context.Background(), "p1"))

	enq = &Enqueuer{Client: &fakeClient{err: errors.New("redis down")}}
	require.Error(t, enq.EnqueueRecompute(context.Background(), "p1"))

	require.Error(t, enq.EnqueueRecompute(context.Background(), ""))
	require.Error(t, (*Enqueuer)(nil).EnqueueRecompute(context.Background(), "p1"))
}

func TestHandleRecompute(t *testing.T) {
	repricer := &fakeRepricer{}
	h := &Handler{Repricer: repricer, Logger: zerolog.Nop()}

	task, err := NewRecomputeTask("p9")
	require.NoError(t, err)
	require.NoError(t, h.HandleRecompute(context.Background(), task))
	require.Equal(t, []string{"p9"}, repricer.calls)
}

func TestHandleRecomputeSkipsRetryForBadInput(t *testing.T) {
	h := &Handler{Repricer: &fakeRepricer{}, Logger: zerolog.Nop()}

	err := h.HandleRecompute(context.Background(), asynq.NewTask(TypeRecompute, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleRecompute(context.Background(), asynq.NewTask(TypeRecompute, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	h.Repricer = &fakeRepricer{err: catalog.ErrNotFound}
	task, _ := NewRecomputeTask("gone")
	err = h.HandleRecompute(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestHandleRecomputeRetriesTransientErrors(t *testing.T) {
	h := &Handler{Repricer: &fakeRepricer{err: catalog.ErrConflict}, Logger: zerolog.Nop()}
	task, _ := NewRecomputeTask("busy")
	err := h.HandleRecompute(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
