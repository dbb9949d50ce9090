package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronicle-dev/chronicle/pkg/event"
)

func validConfig() *Config {
	return &Config{
		Name: "test-deployment",
		Indexer: []event.Config{
			{EventName: "transfer", DBURL: "host=localhost port=5432 dbname=chronicle"},
			{EventName: "approval", DBURL: "host=localhost port=5432 dbname=chronicle"},
		},
		Server: ServerConfig{DBURL: "host=localhost port=5432 dbname=chronicle", ServerURL: "0.0.0.0:8080"},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsDuplicateEventName(t *testing.T) {
	cfg := validConfig()
	cfg.Indexer[1].EventName = "transfer"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate event_name")
}

func TestValidateRejectsEmptyHost(t *testing.T) {
	cfg := validConfig()
	cfg.Indexer[0].DBURL = "dbname=chronicle"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "host")
}

func TestValidateRejectsEmptyDBName(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DBURL = "host=localhost"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "database name")
}

func TestConnStringValue(t *testing.T) {
	v, ok := connStringValue("host=localhost port=5432 dbname=chronicle", "dbname")
	require.True(t, ok)
	require.Equal(t, "chronicle", v)

	_, ok = connStringValue("host=localhost", "dbname")
	require.False(t, ok)
}
