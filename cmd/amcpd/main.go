// Command amcpd runs the amcp server: the HTTP/WS/SSE surface in front of
// sessionmgr.Manager, so any number of clients (the amcp CLI, an editor
// plugin, a browser-based UI) can drive sessions concurrently instead of
// each spawning their own agent process the way the teacher's single-shot
// binary did.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/server"
	"github.com/amcp-dev/amcp/sessionmgr"
	"github.com/amcp-dev/amcp/telemetry"
	"golang.org/x/sync/errgroup"
)

// shutdownGracePeriod bounds how long amcpd waits, after SIGINT/SIGTERM,
// for in-flight turns to finish before the process exits anyway.
const shutdownGracePeriod = 20 * time.Second

const version = "dev"

func main() {
	hostFlag := flag.String("host", "", "bind address (defaults to 127.0.0.1)")
	portFlag := flag.Int("port", 0, "bind port (defaults to 4096)")
	maxSessionsFlag := flag.Int("max-sessions", 0, "maximum concurrent sessions (defaults to 100)")
	defaultAgentFlag := flag.String("default-agent", "", "toolset new sessions use when none is specified")
	traceFlag := flag.Bool("trace", false, "emit OpenTelemetry spans for agent turns, tool dispatch, and hooks to stdout")
	flag.Parse()

	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, "amcpd", version, *traceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing tracing: %+v\n", err)
		os.Exit(1)
	}
	defer shutdownTracing(ctx)

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	srvCfg := server.DefaultConfig()
	if *hostFlag != "" {
		srvCfg.Host = *hostFlag
	}
	if *portFlag != 0 {
		srvCfg.Port = *portFlag
	}

	mgrCfg := sessionmgr.DefaultConfig()
	if *maxSessionsFlag != 0 {
		mgrCfg.MaxSessions = *maxSessionsFlag
	}
	if *defaultAgentFlag != "" {
		mgrCfg.DefaultAgent = *defaultAgentFlag
	}

	mgr := sessionmgr.New(cfg, mgrCfg)
	srv := server.New(cfg, mgr, srvCfg)

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()
	mgr.StartQueueDrainer(drainCtx, 500*time.Millisecond)

	// SIGINT/SIGTERM trigger a graceful shutdown: stop the queue drainer,
	// wait for any turn already running to finish, then stop accepting new
	// HTTP work before the process exits. group.Wait returns the first
	// non-nil error from either goroutine. golang.org/x/sync was only an
	// indirect dependency before this; errgroup is the one place this
	// binary needs two goroutines to fail into a single error.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.ListenAndServe)
	group.Go(func() error {
		sigCtx, stop := signal.NotifyContext(groupCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()

		cancelDrain()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancelShutdown()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "amcpd: %v\n", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "amcpd stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}
