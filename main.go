package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"com.aviebrantz.smart-energy/pkg/api"
	"com.aviebrantz.smart-energy/pkg/auth"
	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/core/store/devices"
	"com.aviebrantz.smart-energy/pkg/core/store/historical"
	"com.aviebrantz.smart-energy/pkg/dashboard"
	"com.aviebrantz.smart-energy/pkg/gateway/coap"
	"com.aviebrantz.smart-energy/pkg/homegraph"
	locationingest "com.aviebrantz.smart-energy/pkg/ingestion/location"
	usageingest "com.aviebrantz.smart-energy/pkg/ingestion/usage"
	"com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/metrics"
	"com.aviebrantz.smart-energy/pkg/notice"
	"com.aviebrantz.smart-energy/pkg/presence"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	bolt "go.etcd.io/bbolt"
	"gocloud.dev/docstore"
	"gocloud.dev/pubsub"

	_ "gocloud.dev/docstore/memdocstore"
	_ "gocloud.dev/docstore/mongodocstore"
	_ "gocloud.dev/pubsub/mempubsub"
)

func setupLogging(cfg config.LogConfig) {
	switch cfg.Format {
	case "json":
		log.SetHandler(json.New(os.Stderr))
	case "text":
		log.SetHandler(text.New(os.Stderr))
	default:
		log.SetHandler(cli.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

type stores struct {
	devices devices.DeviceStore
	usage   historical.TimeSeriesStore
	close   func()
}

func openStores(ctx context.Context, cfg config.StorageConfig) (*stores, error) {
	if cfg.Type == config.StorageLocal {
		db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, err
		}
		return &stores{
			devices: devices.NewDeviceLocalStore(db),
			usage:   historical.NewTimeSeriesLocalStore(db),
			close:   func() { db.Close() },
		}, nil
	}

	deviceCollURL := "mem://devices/deviceID"
	usageCollURL := "mem://usage/id"
	if cfg.Type == config.StorageDocstore {
		base := strings.TrimRight(cfg.URL, "/")
		deviceCollURL = base + "/devices?id_field=deviceID"
		usageCollURL = base + "/usage?id_field=id"
	}

	devicesColl, err := docstore.OpenCollection(ctx, deviceCollURL)
	if err != nil {
		return nil, err
	}
	usageColl, err := docstore.OpenCollection(ctx, usageCollURL)
	if err != nil {
		devicesColl.Close()
		return nil, err
	}
	return &stores{
		devices: devices.NewDeviceDocStore(devicesColl),
		usage:   historical.NewHistoricalDocStore(usageColl),
		close: func() {
			devicesColl.Close()
			usageColl.Close()
		},
	}, nil
}

func openTopic(ctx context.Context, scheme, name string) (*pubsub.Topic, *pubsub.Subscription) {
	url := scheme + "://" + name
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		log.Fatalf("Err creating %s topic :%v", name, err)
	}
	sub, err := pubsub.OpenSubscription(ctx, url)
	if err != nil {
		log.Fatalf("could not open %s topic subscription :%v", name, err)
	}
	return topic, sub
}

func checkPresence(monitor *presence.Monitor) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reading, err := monitor.Check(ctx)
	if err != nil {
		log.WithField("module", "main").Infof("presence check skipped: %v", err)
		return
	}
	log.WithField("module", "main").Infof("presence check: %.0f m from home", reading.Meters)
}

func main() {
	configFile := flag.String("config", config.DefaultConfigFile, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfigFromFile(*configFile)
	if err != nil {
		log.Fatalf("Err loading config :%v", err)
	}
	setupLogging(cfg.LogConfig)

	ctx := context.Background()

	locationTopic, locationSub := openTopic(ctx, cfg.MessagingConfig.Type, "locationTopic")
	defer locationTopic.Shutdown(ctx)
	defer locationSub.Shutdown(ctx)
	usageTopic, usageSub := openTopic(ctx, cfg.MessagingConfig.Type, "usageTopic")
	defer usageTopic.Shutdown(ctx)
	defer usageSub.Shutdown(ctx)

	st, err := openStores(ctx, cfg.StorageConfig)
	if err != nil {
		log.Fatalf("could not open %s storage :%v", cfg.StorageConfig.Type, err)
	}
	defer st.close()

	if err := homegraph.RegisterMetrics(); err != nil {
		log.Fatalf("Failed to register views: %v", err)
	}

	notices := notice.NewBoard(0)
	session := auth.NewSession()
	authenticator := auth.NewAuthenticator(cfg.OAuthConfig, session, notices)
	homeGraph := homegraph.NewClient(cfg.HomeGraphConfig, session, nil)

	controller := dashboard.NewController(st.devices, homeGraph, usageingest.NewPublisher(usageTopic), notices, homeGraph.AgentUserID())
	if err := controller.Seed(ctx, cfg.Devices); err != nil {
		log.Fatalf("could not seed devices :%v", err)
	}
	chart := dashboard.NewUsageChart(st.usage, controller)
	if err := chart.Seed(ctx, cfg.UsageConfig.Seed, time.Now()); err != nil {
		log.Fatalf("could not seed usage :%v", err)
	}

	tracker := location.NewTracker()
	samples := location.NewPublisher(locationTopic)
	gate := presence.NewGate(cfg.HomeConfig, homeGraph.AgentUserID(), controller)
	monitor := presence.NewMonitor(gate, tracker, notices)

	var evaluator locationingest.Evaluator
	if cfg.PresenceConfig.Mode == config.PresencePeriodic {
		evaluator = gate
	} else {
		session.OnChange(func(state auth.State) {
			if state == auth.StateAuthenticated {
				go checkPresence(monitor)
			}
		})
		go checkPresence(monitor)
	}

	locationIngestor := locationingest.NewIngestor(locationSub, tracker, evaluator)
	usageIngestor := usageingest.NewIngestor(usageSub, st.usage)
	apiServer := api.NewServer(api.Services{
		Controller:    controller,
		Usage:         chart,
		History:       st.usage,
		Authenticator: authenticator,
		Session:       session,
		Gate:          gate,
		Monitor:       monitor,
		Tracker:       tracker,
		Samples:       samples,
		Notices:       notices,
	}, cfg.APIServerConfig, cfg.UsageConfig)

	for i := range cfg.GatewayConfigs {
		gateway := coap.NewGateway(samples, &cfg.GatewayConfigs[i])
		go gateway.Start()
	}
	go locationIngestor.Start()
	go usageIngestor.Start()
	go apiServer.Start()
	metrics.StartMetricsExporter(cfg.MetricsConfig)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	log.Info("Server Started")
	<-done
	log.Info("Server Stopped")
}
