// Command pgjinx is a fault-injecting PostgreSQL proxy for automated
// tests. It accepts client connections on one address, forwards every
// protocol message to a real server, and applies the faults a scenario
// file describes: delaying, dropping, corrupting or killing selected
// messages.
//
//	pgjinx -upstream 127.0.0.1:5432 -scenario slow_reads.yaml -addr-file proxy.addr
//
// A captured event log (-events output) can be summarized after the fact:
//
//	pgjinx -explain events.jsonl
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/matgreaves/run"

	"github.com/matgreaves/pgjinx/connect"
	"github.com/matgreaves/pgjinx/explain"
	"github.com/matgreaves/pgjinx/fault"
	"github.com/matgreaves/pgjinx/proxy"
	"github.com/matgreaves/pgjinx/spec"
)

func main() {
	var (
		listen       = flag.String("listen", "127.0.0.1:0", "address to accept client connections on")
		upstream     = flag.String("upstream", "", "address of the real PostgreSQL server (host:port)")
		scenarioPath = flag.String("scenario", "", "fault scenario file (.json, .yaml or .yml)")
		addrFile     = flag.String("addr-file", "", "write the bound listen address to this file")
		events       = flag.Bool("events", false, "stream events as JSON lines on stdout")
		quiet        = flag.Bool("quiet", false, "suppress event lines on stderr")
		idleTimeout  = flag.Duration("idle-timeout", 0, "exit after this long with no client connections (0 to disable)")
		waitUpstream = flag.Bool("wait-upstream", false, "wait for the upstream to accept connections before serving")
		explainPath  = flag.String("explain", "", "summarize a captured events file (JSON lines) and exit")
	)
	flag.Parse()

	if *explainPath != "" {
		report, err := explain.AnalyzeFile(*explainPath)
		if err != nil {
			fatal(err)
		}
		explain.Pretty(os.Stdout, report)
		return
	}

	if *upstream == "" {
		fmt.Fprintln(os.Stderr, "pgjinx: -upstream is required")
		flag.Usage()
		os.Exit(2)
	}
	target, err := spec.ParseEndpoint(*upstream)
	if err != nil {
		fatal(err)
	}
	if target.Host == "" {
		fatal(fmt.Errorf("upstream %q has no host", *upstream))
	}

	var engine *fault.Engine
	if *scenarioPath != "" {
		scn, err := spec.LoadScenario(*scenarioPath)
		if err != nil {
			fatal(err)
		}
		engine, err = fault.Compile(scn)
		if err != nil {
			fatal(fmt.Errorf("scenario %s: %w", *scenarioPath, err))
		}
		name := scn.Name
		if name == "" {
			name = *scenarioPath
		}
		fmt.Fprintf(os.Stderr, "pgjinx: scenario %q (%d rules)\n", name, len(scn.Rules))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *waitUpstream {
		if err := connect.Wait(ctx, target); err != nil {
			fatal(err)
		}
	}

	// Listen before writing the addr file so a reader never dials an
	// address nothing accepts on.
	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fatal(fmt.Errorf("listen %s: %w", *listen, err))
	}

	if *addrFile != "" {
		if err := writeAddrFile(*addrFile, ln.Addr().String()); err != nil {
			fatal(err)
		}
		defer os.Remove(*addrFile)
	}

	fmt.Fprintf(os.Stderr, "pgjinx listening on %s, upstream %s\n", ln.Addr(), target.Addr())

	log := proxy.NewEventLog()
	idle := proxy.NewIdleTimer(*idleTimeout)
	idle.Emit = log.Publish

	fwd := &proxy.Forwarder{
		Target:   target,
		Engine:   engine,
		Emit:     log.Publish,
		Idle:     idle,
		Listener: ln,
	}

	group := run.Group{
		"proxy":  fwd.Runner(),
		"events": eventsRunner(log, *events, *quiet),
	}
	if *idleTimeout > 0 {
		group["watchdog"] = idle.Runner()
	}

	err = group.Run(ctx)
	switch {
	case errors.Is(err, proxy.ErrIdle):
		fmt.Fprintln(os.Stderr, "pgjinx: idle timeout, shutting down")
	case err != nil:
		fmt.Fprintf(os.Stderr, "pgjinx: %s\n", stripRunPrefixes(err.Error()))
		os.Exit(1)
	case ctx.Err() != nil:
		fmt.Fprintln(os.Stderr, "pgjinx: shutting down")
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "pgjinx: %v\n", err)
	os.Exit(1)
}

// writeAddrFile writes addr atomically (tmp + rename) so a reader never
// sees a partial address.
func writeAddrFile(path, addr string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(addr), 0o644); err != nil {
		return fmt.Errorf("write addr file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename addr file: %w", err)
	}
	return nil
}

// runPrefixRE matches the error prefixes added by run.Sequence and run.Group.
var runPrefixRE = regexp.MustCompile(`^(sequence \[\d+:\d+\]: |run\.Group\[[^\]]+\]: )+`)

// stripRunPrefixes removes leading orchestration prefixes so users see
// the domain error, not the shape of the runner tree.
func stripRunPrefixes(s string) string {
	return runPrefixRE.ReplaceAllString(s, "")
}
