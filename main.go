package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-flextrack/ble"
	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/client"
	"github.com/robertof/go-flextrack/collector"
	"github.com/robertof/go-flextrack/metrics"
	"github.com/robertof/go-flextrack/session"
	"github.com/robertof/go-flextrack/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	zerolog.DurationFieldUnit = time.Second
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	})

	cfg := ParseArgs()

	if cfg.Trace || os.Getenv("TRACE") != "" {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	} else if cfg.Debug || os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if cfg.DiscoverDevices {
		doDeviceDiscovery(cfg)
		return
	}

	p, err := cfg.Plan()

	if err != nil {
		log.Fatal().Err(err).Msg("Invalid subscription plan")
	}

	log.Info().
		Str("BindAddr", cfg.BindAddress).
		Stringer("Target", cfg.TargetSpec()).
		Stringer("Plan", p).
		Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
		Msg("Starting with the specified configuration")

	bleHandle := initBle(cfg)
	defer bleHandle.Stop()

	registry := prometheus.NewRegistry()
	ble.RegisterMetrics(registry)
	session.RegisterMetrics(registry)

	latest := collector.NewLatest()
	latest.MaxAge = cfg.ValueMaxAge

	c := client.New(bleHandle, p, client.Options{Session: cfg.SessionOptions()})
	defer c.Close()

	c.OnLog(func(line string) {
		log.Info().Str("Line", line).Msg("ble")
	})
	c.OnValue(latest.Update)
	c.OnValue(func(v channel.Value) {
		log.Debug().Stringer("Value", v).Msg("Received value")
	})

	metrics.RegisterCollector(func() metrics.Sample {
		return metrics.Sample{
			Values: latest.Snapshot(),
			State:  c.State(),
		}
	}, registry)

	ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		c.Run(ctx)
		return nil
	})

	eg.Go(func() error {
		collector.KeepConnected(ctx, c, cfg.TargetSpec(), cfg.ReconnectInterval)
		return nil
	})

	eg.Go(func() error {
		if err := latest.WaitFirst(ctx); err != nil {
			return nil
		}

		log.Info().
			Array("Channels", utils.ToZeroLogArray(p.Channels())).
			Msg("Receiving values")

		return nil
	})

	if cfg.BindAddress != "" {
		eg.Go(func() error {
			return serveMetrics(ctx, cfg.BindAddress, registry)
		})
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutting down")
	}

	log.Info().Strs("Log", c.Log()).Msg("Session log")
}

func initBle(cfg config) *ble.Handle {
	// names only show up in scan responses.
	bleFlags := ble.FlagScanTypeActive

	var allowList []net.HardwareAddr

	if addr := cfg.TargetSpec().Addr(); addr != "" {
		if mac, err := net.ParseMAC(addr); err == nil {
			bleFlags |= ble.FlagEnableDeviceAllowList
			allowList = append(allowList, mac)
		} else {
			log.Warn().Err(err).Str("Addr", addr).Msg("Target address is not a MAC, not allow-listing it")
		}
	}

	bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, bleFlags)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
	}

	bleHandle.ScanWindow = cfg.ScanDuration

	if len(allowList) > 0 {
		if err := bleHandle.SetAllowListedAddresses(allowList); err != nil {
			log.Error().Err(err).Msg("Failed to set device allow list")
		}
	}

	return bleHandle
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("ListenAddress", addr).
		Msg("Starting Prometheus server")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Unable to bind on requested address")
		return err
	}

	return nil
}
