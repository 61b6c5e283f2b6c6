package notify

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/value"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewBatch_CountsAndPayload(t *testing.T) {
	res := &diff.Result{
		Timestamp: "2024-05-01T14:05+00:00",
		Events: []diff.Event{
			{Timestamp: "2024-05-01T14:05+00:00", Tipo: diff.Aparece, ID: "3", Nombre: "Nuevo"},
			{Timestamp: "2024-05-01T14:05+00:00", Tipo: diff.Desaparece, ID: "1", Nombre: "Viejo"},
			{Timestamp: "2024-05-01T14:05+00:00", Tipo: diff.Aparece, ID: "4", Nombre: "Otro"},
		},
		Modifications: []diff.Modification{
			{
				Timestamp: "2024-05-01T14:05+00:00", ID: "2", Campo: "costo",
				Viejo: value.Int(10), Nuevo: value.Int(12),
			},
		},
	}

	b := NewBatch("run-1", res)
	assert.Equal(t, 2, b.Arrivals)
	assert.Equal(t, 1, b.Departures)
	assert.False(t, b.Empty())

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	mods := decoded["modifications"].([]any)
	require.Len(t, mods, 1)
	assert.Equal(t, "costo", mods[0].(map[string]any)["campo"])
	assert.EqualValues(t, 12, mods[0].(map[string]any)["nuevo"])
}

func TestNewBatch_EmptyResultEncodesEmptyArrays(t *testing.T) {
	b := NewBatch("run-1", &diff.Result{Timestamp: "2024-05-01T14:05+00:00"})
	assert.True(t, b.Empty())

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"events":[]`)
	assert.Contains(t, string(data), `"modifications":[]`)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), Batch{}))
	p.Close()
}

func TestNewNATSPublisher_RequiresSubject(t *testing.T) {
	_, err := NewNATSPublisher(Options{URL: "nats://127.0.0.1:4222"}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestNewNATSPublisher_UnreachableServer(t *testing.T) {
	_, err := NewNATSPublisher(Options{
		URL:     "nats://127.0.0.1:1",
		Subject: "tramites.changes",
		Timeout: 200 * time.Millisecond,
	}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}
