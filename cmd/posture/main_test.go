package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posture.report/internal/alert"
)

func TestEnvName(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"listen", "POSTURE_LISTEN"},
		{"mqtt-broker", "POSTURE_MQTT_BROKER"},
		{"wearable-port", "POSTURE_WEARABLE_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			assert.Equal(t, tt.want, envName(tt.flag))
		})
	}
}

func newFlagSet() (*flag.FlagSet, *string, *string, *bool, *time.Duration) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	listen := fs.String("listen", ":8080", "")
	broker := fs.String("mqtt-broker", "", "")
	dev := fs.Bool("dev", false, "")
	interval := fs.Duration("interval", time.Second, "")
	return fs, listen, broker, dev, interval
}

func TestApplyEnvOverrides(t *testing.T) {
	fs, listen, broker, dev, interval := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-listen", ":9090"}))

	env := map[string]string{
		"POSTURE_LISTEN":      ":7070",
		"POSTURE_MQTT_BROKER": "tcp://broker:1883",
		"POSTURE_DEV":         "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, applyEnvOverrides(fs, lookup))

	assert.Equal(t, ":9090", *listen, "command line wins over the environment")
	assert.Equal(t, "tcp://broker:1883", *broker)
	assert.True(t, *dev)
	assert.Equal(t, time.Second, *interval, "unset variables keep defaults")
}

func TestApplyEnvOverrides_InvalidValue(t *testing.T) {
	fs, _, _, _, _ := newFlagSet()
	require.NoError(t, fs.Parse(nil))

	err := applyEnvOverrides(fs, func(k string) (string, bool) {
		if k == "POSTURE_INTERVAL" {
			return "soon", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTURE_INTERVAL")
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "posture.db", *dbPath)
	assert.Equal(t, 1.0, *replayRate)
	assert.Equal(t, 9600, *wearableBaud)
	assert.Empty(t, *mqttBroker)
	assert.False(t, *devMode)
}

func TestParseCaller(t *testing.T) {
	c, err := parseCaller("")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = parseCaller("  \t ")
	assert.Error(t, err)

	c, err = parseCaller("/usr/bin/call-nurse --room 12")
	require.NoError(t, err)
	assert.Equal(t, alert.CommandCaller{Program: "/usr/bin/call-nurse", Args: []string{"--room", "12"}}, c)
}
