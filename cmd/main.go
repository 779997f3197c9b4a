package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kass/go-speedlimit/pkg/memindex"
	"github.com/kass/go-speedlimit/pkg/speedlimit"
)

var (
	datasetPath string
	window      float64
)

var rootCmd = &cobra.Command{
	Use:   "go-speedlimit",
	Short: "Offline speed limit lookup for GPS coordinates",
	Long:  `Resolves posted speed limits from a pre-built, read-only SQLite dataset using a grid-indexed nearest-segment search with a bounding-box fallback.`,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Resolve the speed limit at a coordinate",
	Long:  `Look up the posted speed limit of the nearest matching road segment at the given latitude and longitude.`,
	Run:   runLookup,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show detailed road information at a coordinate",
	Long:  `Look up the nearest road segment and print its name, highway type and speed limit.`,
	Run:   runInfo,
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark lookups against the dataset",
	Long:  `Run randomized lookups inside the dataset envelope and report throughput for the SQL path and the in-memory index.`,
	Run:   runBench,
}

var (
	lat        float64
	lon        float64
	numQueries int
	useMemory  bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "db", "d", "za_speedlimits.db", "Dataset file path")
	rootCmd.PersistentFlags().Float64VarP(&window, "window", "w", speedlimit.DefaultWindow, "Fallback search window in degrees")

	lookupCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	lookupCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	cobra.CheckErr(lookupCmd.MarkFlagRequired("lat"))
	cobra.CheckErr(lookupCmd.MarkFlagRequired("lon"))

	infoCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	infoCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	cobra.CheckErr(infoCmd.MarkFlagRequired("lat"))
	cobra.CheckErr(infoCmd.MarkFlagRequired("lon"))

	benchCmd.Flags().IntVarP(&numQueries, "queries", "q", 10000, "Number of lookups to run")
	benchCmd.Flags().BoolVarP(&useMemory, "memory", "m", false, "Also benchmark the in-memory index")

	rootCmd.AddCommand(lookupCmd, infoCmd, benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openSession() *speedlimit.Session {
	session, err := speedlimit.Open(datasetPath, speedlimit.WithWindow(window))
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	return session
}

func runLookup(cmd *cobra.Command, args []string) {
	session := openSession()
	defer session.Close()

	fmt.Printf("Looking up speed limit for: %.6f, %.6f\n", lat, lon)

	res, err := session.Lookup(lat, lon)
	if err != nil {
		log.Fatalf("Lookup failed: %v", err)
	}

	if res.Found {
		fmt.Printf("Speed limit: %d km/h (%s match)\n", res.SpeedLimit, res.Source)
	} else {
		fmt.Println("No road found at this location")
	}
}

func runInfo(cmd *cobra.Command, args []string) {
	session := openSession()
	defer session.Close()

	info, err := session.RoadInfo(lat, lon)
	if err != nil {
		log.Fatalf("Road info lookup failed: %v", err)
	}
	if info == nil {
		fmt.Println("No road found at this location")
		return
	}

	name := info.Name
	if name == "" {
		name = "(unnamed)"
	}
	suffix := ""
	if info.Inferred {
		suffix = " (inferred)"
	}
	fmt.Printf("%s [%s] %d km/h%s\n", name, info.HighwayType, info.SpeedLimit, suffix)
}

func runBench(cmd *cobra.Command, args []string) {
	session := openSession()
	defer session.Close()

	bounds := session.Bounds()
	fmt.Printf("Dataset bounds: [%.2f,%.2f] x [%.2f,%.2f], grid %dx%d\n",
		bounds.MinLat, bounds.MaxLat, bounds.MinLon, bounds.MaxLon,
		bounds.GridSize, bounds.GridSize)
	fmt.Printf("Running %d lookups...\n", numQueries)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	points := make([]struct{ lat, lon float64 }, numQueries)
	for i := range points {
		points[i].lat = bounds.MinLat + r.Float64()*(bounds.MaxLat-bounds.MinLat)
		points[i].lon = bounds.MinLon + r.Float64()*(bounds.MaxLon-bounds.MinLon)
	}

	var gridHits, windowHits, misses int
	start := time.Now()
	for _, p := range points {
		res, err := session.Lookup(p.lat, p.lon)
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		switch {
		case res.Found && res.Source == speedlimit.SourceGrid:
			gridHits++
		case res.Found:
			windowHits++
		default:
			misses++
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("\nSQL path results:\n")
	fmt.Printf("Total time: %v\n", elapsed)
	fmt.Printf("Lookups per second: %.0f\n", float64(numQueries)/elapsed.Seconds())
	fmt.Printf("Average lookup time: %v\n", elapsed/time.Duration(numQueries))
	fmt.Printf("Grid hits: %d, window hits: %d, misses: %d\n", gridHits, windowHits, misses)

	if !useMemory {
		return
	}

	fmt.Printf("\nPreloading in-memory index...\n")
	loadStart := time.Now()
	index, err := memindex.FromSession(session)
	if err != nil {
		log.Fatalf("Failed to preload index: %v", err)
	}
	fmt.Printf("Loaded %d segments in %v\n", index.Size(), time.Since(loadStart))

	gridHits, windowHits, misses = 0, 0, 0
	start = time.Now()
	for _, p := range points {
		res := index.Lookup(p.lat, p.lon)
		switch {
		case res.Found && res.Source == speedlimit.SourceGrid:
			gridHits++
		case res.Found:
			windowHits++
		default:
			misses++
		}
	}
	elapsed = time.Since(start)

	fmt.Printf("\nIn-memory index results:\n")
	fmt.Printf("Total time: %v\n", elapsed)
	fmt.Printf("Lookups per second: %.0f\n", float64(numQueries)/elapsed.Seconds())
	fmt.Printf("Average lookup time: %v\n", elapsed/time.Duration(numQueries))
	fmt.Printf("Grid hits: %d, window hits: %d, misses: %d\n", gridHits, windowHits, misses)
}
