package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zonas horarias embebidas

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App       AppConfig
	DB        DBConfig
	Store     StoreConfig
	JWT       JWTConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Lock      LockConfig
	Rate      RateConfig
	Kafka     KafkaConfig
	Terminal  TerminalConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	Timezone string // zona horaria de la tienda; define "hoy" y la hora del cierre nocturno
}

// Location devuelve la zona horaria configurada. Load ya la validó; UTC solo para configs armadas a mano.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// StoreConfig selecciona el almacenamiento: "postgres" (producción) o "memory" (desarrollo local).
type StoreConfig struct {
	Driver string
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SchedulerConfig horarios e intervalos de las tareas de conciliación.
// Las expresiones aceptan formato cron de 5 campos o descriptores (@every 15m).
type SchedulerConfig struct {
	NightlyCutoffCron     string
	StaleSweepCron        string
	ReservationSweepCron  string
	ReservationGrace      time.Duration
	LivenessCron          string
	RateRefreshCron       string
	JobTimeout            time.Duration
	OpenReservationsAlert int
}

// LockConfig parámetros del bloqueo de cierre.
type LockConfig struct {
	MirrorMaxAge time.Duration // antigüedad máxima del espejo local del bloqueo
	WaitTimeout  time.Duration // espera máxima por un desbloqueo
}

// RateConfig fuente externa de la tasa de cambio.
type RateConfig struct {
	SourceURL string
	Timeout   time.Duration
	Epsilon   float64 // variación mínima para considerar que la tasa cambió
}

// KafkaConfig réplica opcional de los eventos push hacia un tópico Kafka.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// TerminalConfig cliente de terminal que mantiene el espejo local del bloqueo (cmd/terminal).
type TerminalConfig struct {
	ServerURL string
	Token     string
	CacheDir  string
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, JWT_SECRET, SCHEDULER_*, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "electrocaja"),
			Timezone: getString(v, "APP_TIMEZONE", "America/Caracas"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "electrocaja"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Driver: getString(v, "STORE_DRIVER", "postgres"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "electrocaja"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Scheduler: SchedulerConfig{
			NightlyCutoffCron:     getString(v, "SCHEDULER_NIGHTLY_CUTOFF_CRON", "55 23 * * *"),
			StaleSweepCron:        getString(v, "SCHEDULER_STALE_SWEEP_CRON", "@every 15m"),
			ReservationSweepCron:  getString(v, "SCHEDULER_RESERVATION_SWEEP_CRON", "0 * * * *"),
			ReservationGrace:      getDuration(v, "SCHEDULER_RESERVATION_GRACE", 2*time.Hour),
			LivenessCron:          getString(v, "SCHEDULER_LIVENESS_CRON", "*/30 * * * *"),
			RateRefreshCron:       getString(v, "SCHEDULER_RATE_REFRESH_CRON", "@every 1h"),
			JobTimeout:            getDuration(v, "SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
			OpenReservationsAlert: getInt(v, "SCHEDULER_OPEN_RESERVATIONS_ALERT", 100),
		},
		Lock: LockConfig{
			MirrorMaxAge: getDuration(v, "LOCK_MIRROR_MAX_AGE", time.Hour),
			WaitTimeout:  getDuration(v, "LOCK_WAIT_TIMEOUT", 30*time.Second),
		},
		Rate: RateConfig{
			SourceURL: getString(v, "RATE_SOURCE_URL", "https://ve.dolarapi.com/v1/dolares/oficial"),
			Timeout:   getDuration(v, "RATE_TIMEOUT", 10*time.Second),
			Epsilon:   getFloat(v, "RATE_EPSILON", 0.01),
		},
		Kafka: KafkaConfig{
			Enabled: getBool(v, "KAFKA_ENABLED", false),
			Brokers: splitList(getString(v, "KAFKA_BROKERS", "localhost:9092")),
			Topic:   getString(v, "KAFKA_TOPIC", "electrocaja.events"),
		},
		Terminal: TerminalConfig{
			ServerURL: getString(v, "TERMINAL_SERVER_URL", "http://localhost:8080"),
			Token:     getString(v, "TERMINAL_TOKEN", ""),
			CacheDir:  getString(v, "TERMINAL_CACHE_DIR", ".electrocaja"),
		},
	}

	if _, err := time.LoadLocation(cfg.App.Timezone); err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE inválida %q: %w", cfg.App.Timezone, err)
	}
	if cfg.Store.Driver != "postgres" && cfg.Store.Driver != "memory" {
		return nil, fmt.Errorf("STORE_DRIVER inválido: %q", cfg.Store.Driver)
	}
	if cfg.Scheduler.ReservationGrace <= 0 {
		return nil, fmt.Errorf("SCHEDULER_RESERVATION_GRACE debe ser positivo")
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return def
		}
		return d
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		f, err := strconv.ParseFloat(v.GetString(key), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		b, err := strconv.ParseBool(v.GetString(key))
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
