// Package queueing drains the audit outbox: que jobs enqueued by the
// API land here and get written to the configured sink.
package queueing

import (
	"encoding/json"

	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"

	"github.com/unionhall/hall-app/hall/audit"
	"github.com/unionhall/hall-app/hall/database"
	"github.com/unionhall/hall-app/hall/models"
	"github.com/unionhall/hall-app/log"
)

type queue struct {
	quePool *que.WorkerPool
	pool    *pgx.ConnPool

	sink audit.Sink
}

// StartQue begins listening for audit jobs. It returns immediately; the
// workers run in their own goroutines.
func StartQue(numWorkers int, sink audit.Sink) *queue {
	if sink == nil {
		sink = audit.LogSink{}
	}
	q := &queue{sink: sink}

	pool, err := database.GetQueuePool()
	if err != nil {
		log.Worker.Fatal(err)
	}
	q.pool = pool

	qc := que.NewClient(q.pool)
	wm := que.WorkMap{
		audit.QueEmitActivity: q.emitActivity,
	}

	q.quePool = que.NewWorkerPool(qc, wm, numWorkers)
	q.quePool.Start()

	return q
}

// StopQue cleans up any resources created.
func (q *queue) StopQue() {
	q.quePool.Shutdown()
	q.pool.Close()
}

func (q *queue) emitActivity(job *que.Job) error {
	var activity models.RegistrationActivity
	if err := json.Unmarshal(job.Args, &activity); err != nil {
		// ACK the job; retrying will not make the payload parse.
		log.Worker.Errorf("dropping malformed activity job %d: %s", job.ID, err.Error())
		return nil
	}

	if err := q.sink.Write(activity); err != nil {
		log.Worker.Warnf("sink rejected activity for registration %d, will retry: %s",
			activity.RegistrationID, err.Error())
		return err
	}
	return nil
}
