// Package audit is the outbox to the external audit sink. Every
// mutation writes its RegistrationActivity row transactionally; the
// emit here is the second, best-effort half of the dual audit pattern
// and must never block or fail a core operation.
package audit

import (
	"encoding/json"

	"github.com/bgentry/que-go"
	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/hall/models"
	"github.com/unionhall/hall-app/log"
)

const (
	QueEmitActivity = "EmitActivity"
)

// Sink receives structured activity records. Retention and querying are
// the sink's concern, not ours.
type Sink interface {
	Write(activity models.RegistrationActivity) error
}

// LogSink is the default sink: structured entries on the audit logger.
type LogSink struct{}

func (LogSink) Write(activity models.RegistrationActivity) error {
	log.Audit.WithFields(map[string]interface{}{
		"registration_id": activity.RegistrationID,
		"member_id":       activity.MemberID.String(),
		"book_id":         activity.BookID,
		"kind":            activity.Kind,
		"detail":          activity.Detail,
		"recorded_at":     activity.RecordedAt,
	}).Info("activity")
	return nil
}

// Enqueuer pushes activity records onto the que outbox for the worker
// to drain.
type Enqueuer struct {
	qc *que.Client
}

func NewEnqueuer(qc *que.Client) *Enqueuer {
	return &Enqueuer{qc: qc}
}

func (e *Enqueuer) EmitActivity(activity models.RegistrationActivity) error {
	args, err := json.Marshal(activity)
	if err != nil {
		return errors.Wrap(err, "could not marshal activity")
	}
	return e.qc.Enqueue(&que.Job{Type: QueEmitActivity, Args: args})
}
