// Comando terminal: mantiene en disco el espejo del bloqueo de cierre para un punto de venta.
// El espejo sobrevive reinicios del terminal y caduca según LOCK_MIRROR_MAX_AGE.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LuAM-Lu/electrocaja/internal/client"
	"github.com/LuAM-Lu/electrocaja/pkg/config"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
	"github.com/LuAM-Lu/electrocaja/pkg/ttlcache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	if cfg.Terminal.Token == "" {
		log.Fatal().Msg("TERMINAL_TOKEN requerido")
	}
	storage, err := ttlcache.NewFileStorage(cfg.Terminal.CacheDir)
	if err != nil {
		log.Fatal().Err(err).Msg("directorio del espejo")
	}
	cache := ttlcache.New[client.Mirror](storage, client.MirrorKey, cfg.Lock.MirrorMaxAge)

	if m, ok, err := cache.Get(); err == nil && ok {
		log.Info().Bool("locked", m.State.Locked).Uint64("version", m.Version).Msg("espejo local restaurado")
	}

	lc := client.NewLockClient(client.Config{
		BaseURL: cfg.Terminal.ServerURL,
		Token:   cfg.Terminal.Token,
		OnChange: func(m client.Mirror) {
			if m.State.Locked {
				log.Warn().Str("owner", m.State.OwnerName).Str("type", string(m.State.LockType)).Msg("cierre en progreso")
				return
			}
			log.Info().Msg("sistema desbloqueado")
		},
	}, cache, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("server", cfg.Terminal.ServerURL).Msg("sincronizando bloqueo")
	if err := lc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("cliente de bloqueo finalizado")
	}
	log.Info().Msg("terminal detenido")
}
