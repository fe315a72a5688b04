package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "electrocaja", cfg.App.Name)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "55 23 * * *", cfg.Scheduler.NightlyCutoffCron)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.ReservationGrace)
	assert.Equal(t, time.Hour, cfg.Lock.MirrorMaxAge)
	assert.Equal(t, 10*time.Second, cfg.Rate.Timeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "http://localhost:8080", cfg.Terminal.ServerURL)
	assert.Equal(t, ".electrocaja", cfg.Terminal.CacheDir)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("STORE_DRIVER", "memory")
	v.Set("SCHEDULER_RESERVATION_GRACE", "90m")
	v.Set("HTTP_PORT", "9090")
	v.Set("KAFKA_ENABLED", "true")
	v.Set("KAFKA_BROKERS", "k1:9092, k2:9092")
	v.Set("RATE_EPSILON", "0.5")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.ReservationGrace)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.InDelta(t, 0.5, cfg.Rate.Epsilon, 1e-9)
}

func TestFromViper_DriverInvalido(t *testing.T) {
	v := viper.New()
	v.Set("STORE_DRIVER", "mysql")

	_, err := fromViper(v)
	assert.Error(t, err)
}

func TestFromViper_ZonaHoraria(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "America/Caracas", cfg.App.Location().String(), "la zona por defecto debe cargarse aun sin tzdata del sistema")

	v := viper.New()
	v.Set("APP_TIMEZONE", "America/Nowhere")
	_, err = fromViper(v)
	assert.Error(t, err, "una zona inválida no debe caer en UTC en silencio")
}

func TestDBConfig_ConnectionString(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "caja", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/caja?sslmode=disable", c.ConnectionString())

	c.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", c.ConnectionString())
}
