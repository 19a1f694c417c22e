package demo

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/upsync-dev/upsync/cmd/util"
	"github.com/upsync-dev/upsync/lib/report"
	"github.com/upsync-dev/upsync/lib/sched"
	"github.com/upsync-dev/upsync/lib/shutdown"
)

var (
	// DemoCmd represents the demo command
	DemoCmd = &cobra.Command{
		Use:     "demo",
		Short:   "Run a live scheduler scenario",
		Long:    "Run an Updater, a MultiUpdater and a Restarter side by side for a while, logging every firing. Prometheus metrics are served on the configured endpoint.",
		RunE:    run,
		PreRunE: processDemoConfig,
	}

	demoDuration time.Duration
	demoEndpoint string
	demoLogLevel string
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "duration"
	DemoCmd.Flags().Duration(key, 10*time.Second, util.WrapString("How long the demo scenario should run"))
	key = "endpoint"
	DemoCmd.Flags().String(key, "localhost:9091", util.WrapString("Address serving the /metrics endpoint for the duration of the demo"))
	key = "log-level"
	DemoCmd.Flags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

func processDemoConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	demoDuration = viper.GetDuration("duration")
	demoEndpoint = viper.GetString("endpoint")
	demoLogLevel = viper.GetString("log-level")
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	report.InitLoggers(demoLogLevel)
	log := logger.GetLogger("cmd")

	// metrics endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	srv := &http.Server{Addr: demoEndpoint, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics endpoint: %v", err)
		}
	}()
	defer srv.Close()
	log.Infof("serving metrics on http://%s/metrics", demoEndpoint)

	reporter := report.NewLogReporter("demo")

	// a debounced saver: frequent triggers, few firings
	saver := sched.NewUpdater("demo-saver", func() error {
		log.Infof("saver fired")
		return nil
	}, &sched.Options{Reporter: reporter, Critical: true})
	defer saver.Close()

	// a keyed refresher
	refresher := sched.NewMultiUpdater[string]("demo-refresher", func(key string) error {
		log.Infof("refresher fired for %q", key)
		return nil
	}, &sched.Options{Reporter: reporter})
	defer refresher.Close()

	// a periodic health probe with an intentionally slow consumer on one key
	prober := sched.NewRestarter[string]("demo-prober",
		func(key string) error {
			if key == "slow" {
				time.Sleep(300 * time.Millisecond)
			}
			log.Infof("probe %q", key)
			return nil
		},
		func(key string) {
			log.Warningf("probe %q fell behind its cadence", key)
		},
		&sched.RestarterOptions{Reporter: reporter},
	)
	defer prober.Close()

	if err := prober.Add("fast", 500*time.Millisecond); err != nil {
		return err
	}
	if err := prober.Add("slow", 100*time.Millisecond); err != nil {
		return err
	}

	// drive triggers until the demo duration elapses
	end := time.Now().Add(demoDuration)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	i := 0
	for time.Now().Before(end) {
		<-ticker.C
		saver.TriggerPostpone(200 * time.Millisecond)
		refresher.TriggerUrgent(fmt.Sprintf("page-%d", i%3), 100*time.Millisecond)
		i++
	}

	shutdown.Trigger()
	if !shutdown.WaitBlockers(2 * time.Second) {
		log.Warningf("critical callbacks still running at exit")
	}
	log.Infof("demo finished after %v", demoDuration)
	return nil
}
