package config

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	t.Setenv("DB_NAME", "test")
	conf := New()

	assert.NotEmpty(t, conf)
	assert.Equal(t, "mongodb://127.0.0.1:27017", conf.URL)
	assert.Equal(t, "test", conf.DatabaseName)
	assert.Equal(t, 24*time.Hour, conf.ReminderWindow)
	assert.Equal(t, "0 * * * *", conf.ReminderSchedule)
}

func TestNewReadsTypedEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REMINDER_COOLDOWN", "12h")
	t.Setenv("EVIDENCE_MAX_BYTES", "2048")
	t.Setenv("ALLOW_PARTY_VOTES", "true")
	t.Setenv("REMINDER_WINDOW", "not-a-duration")
	conf := New()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, conf.KafkaBrokers)
	assert.Equal(t, 12*time.Hour, conf.ReminderCooldown)
	assert.Equal(t, int64(2048), conf.EvidenceMaxBytes)
	assert.True(t, conf.AllowPartyVotes)
	assert.Equal(t, 24*time.Hour, conf.ReminderWindow)
}

func TestLoadOverlaysFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disputes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dbName: fromfile\nport: \"9000\"\nreminderWindow: 6h\noverdueSchedule: \"30 2 * * *\"\n"), 0o600))
	t.Setenv("PORT", "7000")

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromfile", conf.DatabaseName)
	assert.Equal(t, "7000", conf.Port)
	assert.Equal(t, 6*time.Hour, conf.ReminderWindow)
	assert.Equal(t, "30 2 * * *", conf.OverdueSchedule)
}

func TestLoadMissingFile(t *testing.T) {
	conf, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.NotNil(t, conf)
}

func TestErrorStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorStatus("error it borked", http.StatusBadRequest, rr, errors.New(`bad "request"`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"response": "error it borked, bad \"request\""}`, rr.Body.String())
}

func TestSetLoggerSetsDevelopmentLogger(t *testing.T) {
	l, err := setLogger("development")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(1))
}

func TestSetLoggerSetsProductionLogger(t *testing.T) {
	l, err := setLogger("production")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(2))
}

func TestSetLoggerSetsLocalLogger(t *testing.T) {
	l, err := setLogger("local")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(0))
}
