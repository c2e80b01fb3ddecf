package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newWithOutput(buf, "debug", "json")

	log.WithField("incident_id", "INC-1").Info("created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "created", entry["msg"])
	assert.Equal(t, "INC-1", entry["incident_id"])
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNew_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newWithOutput(buf, "warn", "text")

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	log := newWithOutput(&bytes.Buffer{}, "loud", "json")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
