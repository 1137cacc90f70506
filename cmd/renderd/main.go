// renderd is the patch execution daemon: it runs the render pipeline,
// the HTTP/WebSocket control surface, and the optional MQTT bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/patchmix/patchmix/internal/api"
	"github.com/patchmix/patchmix/internal/config"
	"github.com/patchmix/patchmix/internal/events"
	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/mqtt"
	"github.com/patchmix/patchmix/internal/pipeline"
	"github.com/patchmix/patchmix/internal/version"
)

func main() {
	configPath := flag.String("config", "renderd.yaml", "path to the renderd config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger := log.Base()
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	log.Configure(log.Config{Level: cfg.LogLevel()})
	logger := log.WithComponent("main")

	api.InitAuth()
	api.InitTLS()
	api.InitAlerts()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Options{
		Width:         cfg.RenderWidth(),
		Height:        cfg.RenderHeight(),
		FPS:           cfg.RenderFPS(),
		PreviewWidth:  cfg.PreviewWidth(),
		PreviewHeight: cfg.PreviewHeight(),
		PreviewFPS:    cfg.PreviewFPS(),
	}, events.Sink{})

	server := api.NewServer(cfg.APIPort(), p, p.Transport())
	api.StartAlertForwarder(ctx)

	events.Emit("info", "system.startup", "", map[string]interface{}{
		"version": version.Version,
		"apiPort": cfg.APIPort(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	if cfg.MQTTEnabled() {
		client := mqtt.NewClient(cfg.MQTTURL(), "renderd", func(err error) {
			api.SendAlert(api.AlertMQTTDisconnected, api.SeverityWarning,
				"mqtt connection lost", map[string]interface{}{"error": err.Error()})
		})
		bridge := mqtt.NewBridge(client, p, cfg.MQTTTopicPrefix())
		g.Go(func() error {
			if err := client.Connect(); err != nil {
				logger.Error().Err(err).Str("url", cfg.MQTTURL()).Msg("mqtt connect failed, bridge disabled")
				return nil
			}
			if err := bridge.Start(); err != nil {
				logger.Error().Err(err).Msg("mqtt subscribe failed, bridge disabled")
			}
			<-ctx.Done()
			client.Disconnect()
			return nil
		})
	}

	err = g.Wait()
	events.Emit("info", "system.shutdown", "", nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("renderd exited with error")
	}
	logger.Info().Msg("renderd stopped")
}
