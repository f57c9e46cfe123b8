package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"maps"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/lychee-technology/crm/internal"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath   string
	backend      string
	contactCount int
	dealCount    int
	taskCount    int
	concurrency  int
	seed         int64
	seedProvided bool
}

// latencies collects per-operation timings from concurrent workers.
type latencies struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
}

func (l *latencies) record(op string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.samples == nil {
		l.samples = make(map[string][]time.Duration)
	}
	l.samples[op] = append(l.samples[op], d)
}

func main() {
	log.SetFlags(0)

	opts := parseFlags()
	ctx := context.Background()

	cfg, err := crm.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if opts.backend != "" {
		cfg.Store.Backend = crm.StoreBackend(opts.backend)
	}
	cfg.Store.MockLatency.Enabled = false

	services, err := factory.NewServices(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create record services: %v", err)
	}
	defer services.Shutdown()

	if !opts.seedProvided {
		log.Printf("[info] Using random seed %d", opts.seed)
	}
	random := rand.New(rand.NewSource(opts.seed))
	stats := &latencies{}

	contactIDs, err := createAll(ctx, services.Contacts, internal.ContactKind.ID, buildContacts(random, opts.contactCount), opts.concurrency, stats, "contact.create")
	if err != nil {
		log.Fatalf("failed to create contacts: %v", err)
	}
	dealIDs, err := createAll(ctx, services.Deals, internal.DealKind.ID, buildDeals(random, opts.dealCount, contactIDs), opts.concurrency, stats, "deal.create")
	if err != nil {
		log.Fatalf("failed to create deals: %v", err)
	}
	if _, err := createAll(ctx, services.Tasks, internal.TaskKind.ID, buildTasks(random, opts.taskCount, contactIDs, dealIDs), opts.concurrency, stats, "task.create"); err != nil {
		log.Fatalf("failed to create tasks: %v", err)
	}

	start := time.Now()
	cols, err := internal.LoadCollections(ctx, services, internal.LoadAllSet)
	if err != nil {
		log.Fatalf("failed to load collections: %v", err)
	}
	stats.record("dashboard.load", time.Since(start))

	start = time.Now()
	dashboard := crm.BuildDashboard(cols.Contacts, cols.Deals, cols.Activities, cols.Tasks, time.Now())
	stats.record("dashboard.build", time.Since(start))

	log.Println("[success] Benchmark complete:")
	log.Printf("  - records: %d contacts, %d deals, %d tasks", len(cols.Contacts), len(cols.Deals), len(cols.Tasks))
	log.Printf("  - pipeline value: %.2f", dashboard.PipelineValue)
	for _, op := range slices.Sorted(maps.Keys(stats.samples)) {
		samples := stats.samples[op]
		log.Printf("  - %-16s n=%-6d p50=%-10s p95=%-10s max=%s", op, len(samples),
			percentile(samples, 50), percentile(samples, 95), percentile(samples, 100))
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", getenvDefault("CONFIG_FILE", ""), "YAML config file (optional)")
	flag.StringVar(&opts.backend, "backend", getenvDefault("STORE_BACKEND", ""), "store backend (memory, sqlite, postgres, remote)")
	flag.IntVar(&opts.contactCount, "contacts", getenvDefaultInt("BENCH_CONTACTS", 1000), "number of contacts to create")
	flag.IntVar(&opts.dealCount, "deals", getenvDefaultInt("BENCH_DEALS", 2000), "number of deals to create")
	flag.IntVar(&opts.taskCount, "tasks", getenvDefaultInt("BENCH_TASKS", 2000), "number of tasks to create")
	flag.IntVar(&opts.concurrency, "concurrency", 8, "concurrent create calls")
	seed := flag.Int64("seed", 0, "random seed (0 uses current time)")

	flag.Parse()

	if *seed == 0 {
		opts.seed = time.Now().UnixNano()
		opts.seedProvided = false
	} else {
		opts.seed = *seed
		opts.seedProvided = true
	}
	if opts.concurrency < 1 {
		opts.concurrency = 1
	}
	return opts
}

// createAll creates records with at most limit calls in flight and returns
// the assigned ids in input order.
func createAll[T any, P any](ctx context.Context, svc crm.RecordService[T, P], id func(T) int64, records []T, limit int, stats *latencies, op string) ([]int64, error) {
	ids := make([]int64, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, record := range records {
		g.Go(func() error {
			start := time.Now()
			created, err := svc.Create(gctx, record)
			stats.record(op, time.Since(start))
			if err != nil {
				return err
			}
			ids[i] = id(created)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

var (
	firstNames = []string{"Ava", "Liam", "Maya", "Noah", "Iris", "Omar", "Lena", "Ravi", "Zoe", "Hugo"}
	lastNames  = []string{"Patel", "Garcia", "Kim", "Nguyen", "Silva", "Okafor", "Novak", "Berg", "Costa", "Ito"}
	companies  = []string{"Northwind", "Contoso", "Globex", "Initech", "Umbrella", "Stark Labs", "Wayne Health", "Acme Retail"}
	dealNouns  = []string{"Renewal", "Expansion", "Pilot", "Migration", "Platform License", "Support Plan"}
	taskVerbs  = []string{"Call", "Email", "Send proposal to", "Schedule demo with", "Follow up with"}
)

func buildContacts(r *rand.Rand, count int) []crm.Contact {
	out := make([]crm.Contact, 0, count)
	for i := range count {
		first, last := randomChoice(r, firstNames), randomChoice(r, lastNames)
		company := randomChoice(r, companies)
		out = append(out, crm.Contact{
			Name:     first + " " + last,
			Company:  company,
			Email:    fmt.Sprintf("%s.%s%d@example.com", first, last, i),
			Phone:    fmt.Sprintf("+1-555-%04d", r.Intn(10000)),
			Industry: crm.Industries[r.Intn(len(crm.Industries))],
		})
	}
	return out
}

func buildDeals(r *rand.Rand, count int, contactIDs []int64) []crm.Deal {
	out := make([]crm.Deal, 0, count)
	now := time.Now().UTC().Truncate(24 * time.Hour)
	for i := range count {
		d := crm.Deal{
			Title:             fmt.Sprintf("%s %s #%d", randomChoice(r, companies), randomChoice(r, dealNouns), i+1),
			Value:             float64(1000 + r.Intn(99000)),
			Stage:             crm.PipelineStages[r.Intn(len(crm.PipelineStages))],
			Probability:       r.Intn(101),
			ExpectedCloseDate: now.AddDate(0, 0, r.Intn(180)),
		}
		if len(contactIDs) > 0 {
			d.ContactID = crm.RefTo(contactIDs[r.Intn(len(contactIDs))])
		}
		out = append(out, d)
	}
	return out
}

func buildTasks(r *rand.Rand, count int, contactIDs, dealIDs []int64) []crm.Task {
	out := make([]crm.Task, 0, count)
	priorities := []crm.Priority{crm.PriorityLow, crm.PriorityMedium, crm.PriorityHigh}
	now := time.Now().UTC()
	for i := range count {
		t := crm.Task{
			Title:    fmt.Sprintf("%s %s #%d", randomChoice(r, taskVerbs), randomChoice(r, firstNames), i+1),
			DueDate:  now.Add(time.Duration(r.Intn(24*60)-24*14) * time.Hour),
			Status:   crm.TaskPending,
			Priority: priorities[r.Intn(len(priorities))],
		}
		if r.Intn(4) == 0 {
			t.Status = crm.TaskCompleted
		}
		if len(contactIDs) > 0 {
			t.ContactID = crm.RefTo(contactIDs[r.Intn(len(contactIDs))])
		}
		if len(dealIDs) > 0 && r.Intn(2) == 0 {
			t.DealID = crm.RefTo(dealIDs[r.Intn(len(dealIDs))])
		}
		out = append(out, t)
	}
	return out
}

// percentile returns the p-th percentile (nearest rank) of samples.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	rank := (p*len(sorted) + 99) / 100
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func randomChoice(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
