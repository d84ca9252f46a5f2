package queueing

import (
	"encoding/json"
	"testing"

	"github.com/bgentry/que-go"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/unionhall/hall-app/hall/constants"
	"github.com/unionhall/hall-app/hall/models"
)

type captureSink struct {
	activities []models.RegistrationActivity
	err        error
}

func (c *captureSink) Write(activity models.RegistrationActivity) error {
	if c.err != nil {
		return c.err
	}
	c.activities = append(c.activities, activity)
	return nil
}

func TestEmitActivity(t *testing.T) {
	sink := &captureSink{}
	q := &queue{sink: sink}

	activity := models.RegistrationActivity{
		RegistrationID: 10,
		MemberID:       uuid.NewRandom(),
		BookID:         1,
		Kind:           constants.ActivityRegister,
	}
	args, err := json.Marshal(activity)
	assert.NoError(t, err)

	assert.NoError(t, q.emitActivity(&que.Job{Type: "EmitActivity", Args: args}))
	assert.Len(t, sink.activities, 1)
	assert.Equal(t, uint(10), sink.activities[0].RegistrationID)
	assert.Equal(t, constants.ActivityRegister, sink.activities[0].Kind)
}

func TestEmitActivityMalformedJobIsAcked(t *testing.T) {
	sink := &captureSink{}
	q := &queue{sink: sink}

	// A payload that will never parse is dropped, not retried.
	assert.NoError(t, q.emitActivity(&que.Job{Type: "EmitActivity", Args: []byte("not json")}))
	assert.Empty(t, sink.activities)
}

func TestEmitActivitySinkFailureRetries(t *testing.T) {
	sink := &captureSink{err: errors.New("sink unavailable")}
	q := &queue{sink: sink}

	args, err := json.Marshal(models.RegistrationActivity{RegistrationID: 10})
	assert.NoError(t, err)

	// The error propagates so que re-runs the job.
	assert.Error(t, q.emitActivity(&que.Job{Type: "EmitActivity", Args: args}))
}
