// qmagnav is the navigation service daemon: it loads a magnetic
// anomaly map, starts the EKF-backed navigation service, and exposes
// it over HTTP and the tool-call surface until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/config"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/fusion"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/httpapi"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/navservice"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/obslog"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/sensors"
)

var configFile = flag.String("config", "", "path to a YAML config file (optional)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := obslog.New(cfg.Logger.Level, cfg.Logger.Output)
	log.Info("starting magnetic anomaly navigation service")

	var field *mapengine.MagneticMap
	if cfg.Map.Path != "" {
		field, err = openMap(cfg.Map)
		if err != nil {
			log.WithError(err).Error("failed to load magnetic map; map-dependent endpoints will return 503")
			field = nil
		} else {
			defer field.Close()
		}
	} else {
		log.Warn("QMAG_NAV_MAP_PATH not set; map-dependent endpoints will return 503")
	}

	ekfCfg := fusion.Config{
		Qp: cfg.Fusion.Qp, Qv: cfg.Fusion.Qv,
		P0Pos: cfg.Fusion.P0Pos, P0Vel: cfg.Fusion.P0Vel,
		MeasurementVar: cfg.Fusion.MeasurementVar,
		HStep:          cfg.Fusion.HStep,
		MinS:           cfg.Fusion.MinS,
		InterpMethod:   mapengine.InterpMethod(cfg.Fusion.InterpMethod),
	}
	ekf, err := fusion.New(ekfCfg, 0, 0)
	if err != nil {
		log.WithError(err).Fatal("failed to construct EKF")
	}

	conditioner, err := sensors.NewConditioner(cfg.Fusion.ConditionerLen, sensors.Identity())
	if err != nil {
		log.WithError(err).Fatal("failed to construct sensor conditioner")
	}

	svc := navservice.New(ekf, field, conditioner, mapengine.InterpMethod(cfg.Fusion.InterpMethod), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Device.Enabled {
		device, err := sensors.NewSerialDevice(sensors.SerialDeviceConfig{
			Port:           cfg.Device.Port,
			BaudRate:       cfg.Device.BaudRate,
			SimulationMode: cfg.Device.SimulationMode,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("failed to open magnetometer device")
		}
		defer device.Close()
		go pollDevice(ctx, device, svc, cfg.Device.PollHz, log)
	}

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := httpapi.New(httpapi.Config{
		Addr:      addr,
		JWTSecret: authSecret(cfg.Auth),
	}, svc, log)
	server.Start(ctx)
	log.WithField("addr", addr).Info("http server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown error")
	}

	log.Info("shutdown complete")
}

// pollDevice drives the navigation service from the attached
// magnetometer at a fixed rate: read one sample, fold it into the
// filter via svc.Observe at the same interval as dt. Read errors are
// logged and skipped rather than treated as fatal, since a dropped
// sample should not bring the daemon down.
func pollDevice(ctx context.Context, device sensors.Reader, svc *navservice.Service, hz float64, log *logrus.Logger) {
	if hz <= 0 {
		hz = 1.0
	}
	interval := time.Duration(float64(time.Second) / hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dt := interval.Seconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := device.Read(ctx)
			if err != nil {
				log.WithError(err).Warn("magnetometer read failed, skipping cycle")
				continue
			}
			if _, err := svc.Observe(sample, dt); err != nil {
				log.WithError(err).Warn("observe from device sample failed")
			}
		}
	}
}

func authSecret(a config.AuthConfig) string {
	if !a.Enabled {
		return ""
	}
	return a.JWTSecret
}

func openMap(cfg config.MapConfig) (*mapengine.MagneticMap, error) {
	var loader mapengine.Loader
	switch cfg.Format {
	case "netcdf":
		loader = mapengine.NewNetCDFLoader()
	case "geotiff", "":
		loader = mapengine.NewGeoTIFFLoader()
	default:
		return nil, fmt.Errorf("unknown map format %q", cfg.Format)
	}
	return mapengine.Open(loader, cfg.Path, cfg.TileCacheSize)
}
