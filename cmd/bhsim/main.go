package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/bhtree/internal/config"
	"github.com/onnwee/bhtree/internal/forces"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/particles"
	"github.com/onnwee/bhtree/internal/quadtree"
	"github.com/onnwee/bhtree/internal/store"
)

func main() {
	// Define command line flags
	demoCmd := flag.NewFlagSet("demo", flag.ExitOnError)

	treeCmd := flag.NewFlagSet("tree", flag.ExitOnError)
	treeN := treeCmd.Int("n", 20, "Number of particles")
	treeDist := treeCmd.String("dist", "uniform", "Particle distribution: uniform, clusters")
	treeSeed := treeCmd.Uint64("seed", 1, "Random seed")
	treeDump := treeCmd.Bool("dump", true, "Print the tree structure")

	compareCmd := flag.NewFlagSet("compare", flag.ExitOnError)
	compareN := compareCmd.Int("n", 1000, "Number of particles")
	compareDist := compareCmd.String("dist", "clusters", "Particle distribution: uniform, clusters")
	compareSeed := compareCmd.Uint64("seed", 1, "Random seed")
	compareTheta := compareCmd.Float64("theta", 0.5, "Opening angle threshold")

	layoutCmd := flag.NewFlagSet("layout", flag.ExitOnError)
	layoutN := layoutCmd.Int("n", 50, "Number of nodes in the ring graph")
	layoutIter := layoutCmd.Int("iterations", layout.DefaultIterations, "Cooling iterations")
	layoutTheta := layoutCmd.Float64("theta", 0.5, "Opening angle threshold")
	layoutSeed := layoutCmd.Uint64("seed", 1, "Random seed for the initial placement")
	layoutJSON := layoutCmd.Bool("json", false, "Print the result as JSON")

	runsCmd := flag.NewFlagSet("runs", flag.ExitOnError)
	runsLimit := runsCmd.Int("limit", 20, "Number of runs to list")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	treeCfg := quadtree.Config{MergeThreshold: cfg.MergeThreshold, MaxDepth: cfg.MaxDepth, SelfEpsilon: cfg.SelfEpsilon}

	// Parse command
	switch os.Args[1] {
	case "demo":
		demoCmd.Parse(os.Args[2:])
		runDemo(treeCfg)
	case "tree":
		treeCmd.Parse(os.Args[2:])
		runTree(treeCfg, generate(*treeDist, *treeN, *treeSeed), *treeDump)
	case "compare":
		compareCmd.Parse(os.Args[2:])
		runCompare(treeCfg, generate(*compareDist, *compareN, *compareSeed), *compareTheta)
	case "layout":
		layoutCmd.Parse(os.Args[2:])
		runLayout(ctx, treeCfg, *layoutN, layout.Options{
			Iterations: *layoutIter,
			Theta:      *layoutTheta,
			Seed:       *layoutSeed,
		}, *layoutJSON)
	case "runs":
		runsCmd.Parse(os.Args[2:])
		runRuns(ctx, cfg, *runsLimit)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("bhsim - Barnes-Hut quadtree toolbox")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bhsim <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  demo      Insert six fixed points into a 100x100 tree and print it")
	fmt.Println("  tree      Build a tree from generated particles and print its shape")
	fmt.Println("  compare   Compare Barnes-Hut interaction counts and forces with brute force")
	fmt.Println("  layout    Lay out a ring graph and print the final positions")
	fmt.Println("  runs      List layout runs stored in DATABASE_URL")
	fmt.Println()
	fmt.Println("Run 'bhsim <command> -h' for command options.")
}

var demoBounds = quadtree.Boundary{W: 100, H: 100}

func generate(dist string, n int, seed uint64) []quadtree.Particle {
	rng := particles.NewRand(seed)
	switch dist {
	case "uniform":
		return particles.Uniform(rng, n, demoBounds, 1)
	case "clusters":
		return particles.Clusters(rng, n, 5, demoBounds, 0.05)
	}
	log.Fatalf("unknown distribution %q", dist)
	return nil
}

func runDemo(cfg quadtree.Config) {
	tree := quadtree.NewWithConfig(demoBounds, cfg)
	fmt.Println("--- Initial Tree State ---")
	fmt.Println(tree.Root())
	fmt.Println()

	points := []quadtree.Particle{
		quadtree.NewParticle(20, 30),
		quadtree.NewParticle(80, 70),
		quadtree.NewParticle(10, 90),
		quadtree.NewParticle(95, 15),
		quadtree.NewParticle(55, 55),
		quadtree.NewParticle(55, 35),
	}
	fmt.Println("--- Adding Points ---")
	for i, p := range points {
		fmt.Printf("Adding point %d: %v\n", i+1, p)
		tree.Insert(p)
	}
	tree.Aggregate()
	fmt.Println()

	fmt.Println("--- Final Tree Root State ---")
	fmt.Println(tree.Root())
	if c, ok := tree.Centroid(); ok {
		fmt.Printf("\nFinal centroid: %v\n\n", c)
	}
	fmt.Println("--- Final Tree Structure ---")
	if err := quadtree.Dump(os.Stdout, tree.Root()); err != nil {
		log.Fatalf("dump: %v", err)
	}
}

func runTree(cfg quadtree.Config, ps []quadtree.Particle, dump bool) {
	start := time.Now()
	tree := quadtree.NewWithConfig(demoBounds, cfg)
	tree.InsertAll(ps)
	tree.Aggregate()
	elapsed := time.Since(start)

	s := tree.Stats()
	fmt.Printf("Particles:     %d\n", len(ps))
	fmt.Printf("Stored:        %d\n", s.Inserted)
	fmt.Printf("Merged:        %d\n", s.Merged)
	fmt.Printf("Forced merges: %d\n", s.ForcedMerges)
	fmt.Printf("Dropped:       %d\n", s.Dropped)
	fmt.Printf("Nodes:         %d (%d leaves, depth %d)\n", s.Nodes, s.Leaves, s.MaxDepth)
	fmt.Printf("Build time:    %s\n", elapsed)
	if c, ok := tree.Centroid(); ok {
		fmt.Printf("Centroid:      %v\n", c)
	}
	if dump {
		fmt.Println()
		if err := quadtree.Dump(os.Stdout, tree.Root()); err != nil {
			log.Fatalf("dump: %v", err)
		}
	}
}

func runCompare(cfg quadtree.Config, ps []quadtree.Particle, theta float64) {
	tree := quadtree.NewWithConfig(demoBounds, cfg)
	tree.InsertAll(ps)
	tree.Aggregate()

	law := forces.Repulsion(-1, -1)
	var (
		bhPairs, virtual int
		maxRelErr        float64
	)
	bhStart := time.Now()
	approx := make([]float64, len(ps))
	for i, p := range ps {
		pairs, err := tree.InteractionsFor(p, theta)
		if err != nil {
			log.Fatalf("interactions: %v", err)
		}
		bhPairs += len(pairs)
		for _, pair := range pairs {
			if pair.Virtual {
				virtual++
			}
		}
		f := forces.Sum(pairs, law, forces.DefaultMinDistance)
		approx[i] = math.Hypot(f.X, f.Y)
	}
	bhTime := time.Since(bhStart)

	bruteStart := time.Now()
	brutePairs := 0
	for i, p := range ps {
		var fx, fy float64
		for j, q := range ps {
			if i == j || p.Dist(q) < tree.Config().SelfEpsilon {
				continue
			}
			brutePairs++
			f := forces.Between(p, q, law, forces.DefaultMinDistance)
			fx += f.X
			fy += f.Y
		}
		if exact := math.Hypot(fx, fy); exact > 0 {
			maxRelErr = math.Max(maxRelErr, math.Abs(approx[i]-exact)/exact)
		}
	}
	bruteTime := time.Since(bruteStart)

	fmt.Printf("Particles:          %d (theta %.2f)\n", len(ps), theta)
	fmt.Printf("Barnes-Hut pairs:   %d (%d virtual) in %s\n", bhPairs, virtual, bhTime)
	fmt.Printf("Brute-force pairs:  %d in %s\n", brutePairs, bruteTime)
	if brutePairs > 0 {
		fmt.Printf("Pair ratio:         %.3f\n", float64(bhPairs)/float64(brutePairs))
	}
	fmt.Printf("Max force magnitude error: %.2f%%\n", maxRelErr*100)
}

func runLayout(ctx context.Context, cfg quadtree.Config, n int, opts layout.Options, asJSON bool) {
	edges := make([]layout.Edge, 0, n)
	for i := 0; i < n && n > 1; i++ {
		edges = append(edges, layout.Edge{From: i, To: (i + 1) % n})
	}
	g, err := layout.NewGraph(n, edges)
	if err != nil {
		log.Fatalf("graph: %v", err)
	}
	opts.Tree = cfg

	l, err := layout.New(ctx, g, opts)
	if err != nil {
		log.Fatalf("layout: %v", err)
	}
	res, err := l.Run(ctx, nil)
	if err != nil {
		log.Fatalf("layout run: %v", err)
	}

	if asJSON {
		out := struct {
			layout.Result
			Positions [][2]float64 `json:"positions"`
		}{Result: res, Positions: layout.Frame{Positions: res.Positions}.XY()}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	fmt.Printf("Nodes: %d, iterations: %d, interactions: %d, forced merges: %d, duration: %s\n",
		n, res.Iterations, res.Interactions, res.ForcedMerges, res.Duration)
	for i, p := range res.Positions {
		fmt.Printf("%4d  %10.4f %10.4f\n", i, p.X, p.Y)
	}
}

func runRuns(ctx context.Context, cfg *config.Config, limit int) {
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	st, err := store.Open(ctx, cfg.DatabaseURL, store.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}
	fmt.Printf("%-6s %-36s %-8s %-8s %-10s %s\n", "ID", "RUN", "NODES", "EDGES", "ITER", "CREATED")
	for _, r := range runs {
		fmt.Printf("%-6d %-36s %-8d %-8d %-10d %s\n", r.ID, r.RunID, r.NodeCount, r.EdgeCount, r.Iterations, r.CreatedAt.Format(time.RFC3339))
	}
}
