// Command activityd runs the activity classification engine as a daemon: it
// consumes motion, location, sensor, and lifecycle events as NDJSON over
// UDP, maintains the segment timeline in a local sqlite store, and serves
// the read-only activity query API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tracksense/activitykit/internal/activity"
	"github.com/tracksense/activitykit/internal/api"
	"github.com/tracksense/activitykit/internal/config"
	"github.com/tracksense/activitykit/internal/segdb"
	"github.com/tracksense/activitykit/internal/timeutil"
	"github.com/tracksense/activitykit/internal/units"
	"github.com/tracksense/activitykit/internal/version"
)

var (
	dbPath     = flag.String("db", "activity.db", "Path to the segment database")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	udpListen  = flag.String("udp", ":5577", "UDP event feed listen address")
	configPath = flag.String("config", "", "Optional tuning config JSON")
	unitsFlag  = flag.String("units", units.MPS, "Display units for speeds (mps, mph, kmph, kph)")
	speedOver  = flag.Float64("speed-override", 0, "Drive speed-override threshold in -units (engine default when 0)")
	sessionID  = flag.String("session-id", "", "Tracking session id (random when empty)")
	deviceID   = flag.String("device-id", "", "Device id (hostname when empty)")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("activityd", version.String())
		return
	}
	log.Printf("activityd %s", version.String())

	if err := units.Validate(*unitsFlag); err != nil {
		log.Fatalf("bad -units flag: %v", err)
	}

	tuning := &config.TuningConfig{}
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		tuning = loaded
		log.Printf("loaded tuning config from %s", *configPath)
	}

	db, err := segdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open segment database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatalf("failed to migrate segment database: %v", err)
	}

	// A segment left open by a crash or power loss gets closed at startup so
	// the new session starts from a clean timeline.
	if dangling, err := db.CurrentOpen(); err == nil {
		dangling.EndTime = time.Now()
		dangling.RecordedAt = dangling.EndTime
		if err := db.Update(dangling); err != nil {
			log.Printf("failed to close dangling segment %s: %v", dangling.LookupID, err)
		} else {
			log.Printf("closed dangling segment %s (%s) from previous run", dangling.LookupID, dangling.Type)
		}
	} else if !errors.Is(err, segdb.ErrNotFound) {
		log.Printf("dangling segment check failed: %v", err)
	}

	clock := timeutil.RealClock{}
	sampler := newFeedSampler()
	conds := newFeedConditions()
	stepSource := newFeedSteps()

	managerCfg := tuning.ManagerConfig()
	if *speedOver > 0 {
		managerCfg.SpeedThresholdMps = units.ToMPS(*speedOver, *unitsFlag)
		log.Printf("speed override threshold set to %.1f m/s", managerCfg.SpeedThresholdMps)
	}

	manager := activity.NewManager(activity.ManagerDeps{
		Clock:      clock,
		Store:      db,
		Analyzer:   activity.NewAnalyzer(clock, tuning.AnalyzerConfig()),
		Helper:     activity.NewConfirmationHelper(sampler, tuning.HelperConfig()),
		Conditions: conds,
		Steps:      stepSource,
		Events: activity.Events{
			ActivityChanged: func(current, previous *activity.Segment) {
				prev := "none"
				if previous != nil {
					prev = string(previous.Type)
				}
				log.Printf("segment %s opened: %s (previous %s)", current.LookupID, current.Type, prev)
			},
			ActivityUpdated: func(seg *activity.Segment) {
				log.Printf("segment %s enriched: steps=%d distance=%.1fm",
					seg.LookupID, derefInt64(seg.StepCount), derefFloat64(seg.StepDistance))
			},
			TrackingStopped: func(seg *activity.Segment) {
				log.Printf("tracking stopped, closed segment %s (%s)", seg.LookupID, seg.Type)
			},
		},
	}, managerCfg)

	session := activity.Session{SessionID: *sessionID, DeviceID: *deviceID}
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	if session.DeviceID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown-device"
		}
		session.DeviceID = host
	}

	conn, err := net.ListenPacket("udp", *udpListen)
	if err != nil {
		log.Fatalf("failed to listen on UDP %s: %v", *udpListen, err)
	}

	shutdown := make(chan struct{})
	stopOnce := func() {
		select {
		case <-shutdown:
		default:
			close(shutdown)
		}
	}

	manager.StartTracking(session)
	log.Printf("tracking session %s on device %s", session.SessionID, session.DeviceID)

	eventFeed := newFeed(manager, sampler, conds, stepSource, stopOnce)
	go eventFeed.listen(conn)
	log.Printf("event feed listening on udp %s", *udpListen)

	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           api.NewServer(manager, *unitsFlag).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("activity API listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	case <-shutdown:
		log.Printf("terminate event received, shutting down")
	}

	manager.StopTracking()
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefFloat64(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
