package startup

import (
	"cmp"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-catalog/internal/logging"
)

const rule = "------------------------------------------------------------"

// report is one titled block of the startup log. Keys are padded to the
// longest key in the block.
type report struct {
	title string
	rows  [][2]string
	warns []string
}

func newReport(title string) *report {
	return &report{title: title}
}

func (r *report) add(key, format string, args ...any) *report {
	r.rows = append(r.rows, [2]string{key, fmt.Sprintf(format, args...)})
	return r
}

func (r *report) warn(format string, args ...any) *report {
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
	return r
}

func (r *report) lines() []string {
	width := 0
	for _, row := range r.rows {
		width = max(width, len(row[0]))
	}
	lines := make([]string, 0, len(r.rows))
	for _, row := range r.rows {
		if row[0] == "" {
			lines = append(lines, "  "+row[1])
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-*s %s", width+1, row[0]+":", row[1]))
	}
	return lines
}

func (r *report) log() {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", r.title)
	logging.Info(rule)
	for _, line := range r.lines() {
		logging.Info("%s", line)
	}
	for _, w := range r.warns {
		logging.Warn("  %s", w)
	}
}

func printBanner() {
	fmt.Println(rule)
	fmt.Println("   MEDIA CATALOG")
	fmt.Println("   metadata, thumbnails and dates for a self-hosted library")
	fmt.Println(rule)

	info := GetBuildInfo()
	newReport("BUILD").
		add("Version", "%s", info.Version).
		add("Commit", "%s", info.Commit).
		add("Build time", "%s", info.BuildTime).
		add("Started", "%s", time.Now().Format(time.RFC1123)).
		log()
}

func logSystemInfo() {
	r := newReport("SYSTEM INFORMATION").
		add("Go version", "%s", runtime.Version()).
		add("OS/Arch", "%s/%s", runtime.GOOS, runtime.GOARCH).
		add("CPUs", "%d", runtime.NumCPU()).
		add("GOMAXPROCS", "%d", runtime.GOMAXPROCS(0))
	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		r.add("", "(container CPU limit detected)")
	}
	if host, err := os.Hostname(); err == nil {
		r.add("Hostname", "%s", host)
	}
	r.log()
}

// LogDatabaseInit reports how long opening and migrating the database took.
func LogDatabaseInit(took time.Duration, seededTypes int) {
	r := newReport("DATABASE").add("Ready in", "%v", took)
	if seededTypes > 0 {
		r.add("Seeded", "%d default file types", seededTypes)
	}
	r.log()
}

func LogThumbnailInit(enabled bool, backend string, size int, vips bool) {
	r := newReport("THUMBNAILS")
	if !enabled {
		r.warn("Thumbnails disabled: cache directory not writable").
			warn("The thumbnail operation will record an error per item").
			log()
		return
	}
	decoder := "imaging"
	if vips {
		decoder = "libvips"
	}
	r.add("Store", "%s", backend).
		add("Size", "%dpx", size).
		add("Decoder", "%s", decoder).
		log()
}

func LogAbortStoreInit(backend string, ttl time.Duration) {
	newReport("ABORT REGISTRY").
		add("Store", "%s", backend).
		add("Token TTL", "%v", ttl).
		log()
}

// LogSchedulerInit lists the cron schedules by operation.
func LogSchedulerInit(schedules map[string]string, workers int) {
	r := newReport("JOB SCHEDULER").add("Workers", "%d", workers)
	if len(schedules) == 0 {
		r.add("", "No scheduled operations (set SCHEDULE_<OPERATION> to enable)").log()
		return
	}
	ops := make([]string, 0, len(schedules))
	for op := range schedules {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		r.add(op, "%s", schedules[op])
	}
	r.log()
}

func LogIndexerInit(interval time.Duration) {
	newReport("INDEXER").add("Interval", "%v", interval).log()
}

func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// RouteInfo is one method and path pair registered on the router.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists the router's routes, one entry per method. Routes without
// a method restriction are listed as "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes prints the route table, grouped by prefix, at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	probes := "ON"
	if !logHealthChecks {
		probes = "OFF (set LOG_HEALTH_CHECKS=true to enable)"
	}
	newReport("HTTP SERVER").add("Probe logging", "%s", probes).log()

	if !logging.IsDebugEnabled() {
		return
	}
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	groups := make(map[string][]RouteInfo)
	for _, rt := range routes {
		g := getRouteGroup(rt.Path)
		groups[g] = append(groups[g], rt)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	logging.Debug("  Registered routes (%d total):", len(routes))
	for _, g := range names {
		logging.Debug("  [%s]", cmp.Or(g, "root"))
		for _, rt := range groups[g] {
			logging.Debug("    %-6s %s", rt.Method, rt.Path)
		}
	}
}

// getRouteGroup returns the first path segment, or two for /api routes.
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	return parts[0]
}

// ServerConfig is what LogServerStarted prints.
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

func LogServerStarted(config ServerConfig) {
	metricsURL := "DISABLED"
	if config.MetricsEnabled {
		metricsURL = fmt.Sprintf("http://0.0.0.0:%s/metrics", config.MetricsPort)
	}
	newReport("SERVER STARTED").
		add("Startup time", "%v", config.StartupDuration).
		add("API", "http://0.0.0.0:%s/api", config.Port).
		add("Metrics", "%s", metricsURL).
		log()
	logging.Info(rule)
}

func LogShutdownInitiated(signal string) {
	newReport(fmt.Sprintf("SHUTDOWN (received %s)", signal)).log()
}

func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits with status 1.
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}
