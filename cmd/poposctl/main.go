package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"popos/internal/model"
	"popos/internal/probe"
	"popos/internal/storage"
	poposapi "popos/pkg/popos"
)

const (
	runsDir  = "runs"
	scansDir = "scans"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "scan":
		return runScan(ctx, args[1:])
	case "evolve":
		return runEvolve(ctx, args[1:])
	case "replay":
		return runReplay(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "plan":
		return runPlan(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	target := fs.String("target", "", "target host or address")
	ports := fs.String("ports", "80", "target port or range, e.g. 80 or 20-80")
	timeout := fs.Duration("timeout", time.Second, "per-probe dial timeout")
	jsonOut := fs.Bool("json", false, "emit scan results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("scan requires --target")
	}
	portList, err := parsePortRange(*ports)
	if err != nil {
		return err
	}

	client, err := poposapi.New(ctx, poposapi.Options{StoreKind: "memory", RunsDir: runsDir, ScansDir: scansDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	results, err := client.Scan(ctx, poposapi.ScanRequest{
		Target:      model.Target{Addr: *target, Ports: portList},
		DialTimeout: *timeout,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return json.NewEncoder(os.Stdout).Encode(results)
	}
	for _, r := range results {
		fmt.Printf("%s:%d %s (%.1fms)\n", *target, r.Port, r.Outcome.State, float64(r.Outcome.Latency)/float64(time.Millisecond))
	}
	return nil
}

func runEvolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	target := fs.String("target", "", "target host or address")
	ports := fs.String("ports", "80", "target port or range, e.g. 80 or 20-80")
	alertFile := fs.String("alert-file", "", "detector alert file to tail for fitness")
	population := fs.Int("population", 10, "population size")
	generations := fs.Int("generations", 20, "generation cap")
	minGenerations := fs.Int("min-generations", 0, "generations to run before the fitness goal can stop the run")
	eliteCount := fs.Int("elite", 1, "elites carried unchanged per generation")
	mutationRate := fs.Float64("mutation-rate", 0.1, "per-gene mutation probability")
	decayMutation := fs.Bool("decay-mutation", false, "decay mutation rate linearly over generations")
	tournamentSize := fs.Int("tournament", 4, "tournament size for parent selection")
	stagnation := fs.Int("stagnation", 0, "stop after this many generations without improvement (0 disables)")
	fitnessGoal := fs.Float64("goal", 0, "stop once best fitness reaches this value (0 disables)")
	seed := fs.Int64("seed", 0, "random seed (0 uses current time)")
	probesPerEval := fs.Int("probes", 1, "probes sent per fitness evaluation")
	settle := fs.Duration("settle", 2*time.Second, "wait after probing before reading the alert feed")
	dialTimeout := fs.Duration("timeout", time.Second, "per-probe dial timeout")
	profilePath := fs.String("profile", "", "YAML or JSON profile overriding evolve parameters")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "popos.db", "sqlite database path")
	verbose := fs.Bool("v", false, "log per-evaluation detail")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("evolve requires --target")
	}
	if *alertFile == "" {
		return errors.New("evolve requires --alert-file")
	}
	portList, err := parsePortRange(*ports)
	if err != nil {
		return err
	}

	req := poposapi.EvolveRequest{
		Target:         model.Target{Addr: *target, Ports: portList},
		Population:     *population,
		Generations:    *generations,
		MinGenerations: *minGenerations,
		EliteCount:     *eliteCount,
		MutationRate:   *mutationRate,
		DecayMutation:  *decayMutation,
		TournamentSize: *tournamentSize,
		Stagnation:     *stagnation,
		FitnessGoal:    *fitnessGoal,
		Seed:           *seed,
		ProbesPerEval:  *probesPerEval,
		SettleWindow:   *settle,
		DialTimeout:    *dialTimeout,
		AlertFile:      *alertFile,
	}
	if *verbose {
		req.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	if *profilePath != "" {
		profile, err := loadProfile(*profilePath)
		if err != nil {
			return err
		}
		profile.apply(&req)
	}

	client, err := poposapi.New(ctx, poposapi.Options{
		StoreKind: *storeKind,
		DBPath:    *dbPath,
		RunsDir:   runsDir,
		ScansDir:  scansDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Evolve(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished: %s after %d generations\n", summary.RunID, summary.StopReason, summary.GenerationsRun)
	fmt.Printf("best fitness %.4f  ttl=%d payload=%d flags=%q window=%d delay=%.2fs\n",
		summary.BestFitness,
		summary.BestDescriptor.TTL,
		summary.BestDescriptor.PayloadSize,
		summary.BestDescriptor.Flags,
		summary.BestDescriptor.WindowSize,
		summary.BestDescriptor.Delay)
	fmt.Printf("run record: %s\n", summary.RunDir)
	if summary.ArtifactPath != "" {
		fmt.Printf("scan plan: %s\n", summary.ArtifactPath)
	}
	return nil
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	file := fs.String("file", "", "scan plan artifact to replay")
	target := fs.String("target", "", "target host or address")
	ports := fs.String("ports", "80", "target port or range, e.g. 80 or 20-80")
	timeout := fs.Duration("timeout", time.Second, "per-probe dial timeout")
	jsonOut := fs.Bool("json", false, "emit replay outcomes as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("replay requires --file")
	}
	if *target == "" {
		return errors.New("replay requires --target")
	}
	portList, err := parsePortRange(*ports)
	if err != nil {
		return err
	}

	client, err := poposapi.New(ctx, poposapi.Options{StoreKind: "memory", RunsDir: runsDir, ScansDir: scansDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Replay(ctx, poposapi.ReplayRequest{
		ArtifactPath: *file,
		Target:       model.Target{Addr: *target, Ports: portList},
		DialTimeout:  *timeout,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return json.NewEncoder(os.Stdout).Encode(summary)
	}
	fmt.Printf("replayed %d probes against %s\n", len(summary.Outcomes), *target)
	for _, state := range []probe.State{probe.StateOpen, probe.StateClosed, probe.StateFiltered, probe.StateNoResponse} {
		if n := summary.Counts[state]; n > 0 {
			fmt.Printf("  %s: %d\n", state, n)
		}
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "popos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := poposapi.New(ctx, poposapi.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ScansDir: scansDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, err := client.Runs(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(records) > *limit {
		records = records[:*limit]
	}

	if *jsonOut {
		return json.NewEncoder(os.Stdout).Encode(records)
	}
	for _, r := range records {
		fmt.Printf("%s target=%s generations=%d best=%.4f stop=%s\n", r.RunID, r.Target.Addr, len(r.Generations), r.BestFitness, r.StopReason)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "popos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("fitness requires --run-id")
	}

	client, err := poposapi.New(ctx, poposapi.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ScansDir: scansDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, *runID)
	if err != nil {
		return err
	}
	if *limit > 0 && len(history) > *limit {
		history = history[len(history)-*limit:]
	}

	if *jsonOut {
		return json.NewEncoder(os.Stdout).Encode(history)
	}
	for i, best := range history {
		fmt.Printf("gen %d: %.4f\n", i, best)
	}
	return nil
}

func runPlan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "popos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("plan requires --run-id")
	}

	client, err := poposapi.New(ctx, poposapi.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ScansDir: scansDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	plan, err := client.LatestPlan(ctx, *runID)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(plan)
}

// parsePortRange accepts a single port ("80") or an inclusive range ("20-80").
func parsePortRange(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("port range is empty")
	}

	lowStr, highStr, isRange := strings.Cut(s, "-")
	low, err := strconv.Atoi(strings.TrimSpace(lowStr))
	if err != nil {
		return nil, fmt.Errorf("invalid port %q", lowStr)
	}
	high := low
	if isRange {
		high, err = strconv.Atoi(strings.TrimSpace(highStr))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", highStr)
		}
	}
	if low < 1 || high > 65535 || low > high {
		return nil, fmt.Errorf("port range %q out of order or out of [1, 65535]", s)
	}

	ports := make([]int, 0, high-low+1)
	for p := low; p <= high; p++ {
		ports = append(ports, p)
	}
	return ports, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: poposctl <scan|evolve|replay|runs|fitness|plan> [flags]", msg)
}
