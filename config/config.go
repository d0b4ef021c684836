package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tripline/hasher"
	"tripline/policy"
	"tripline/release"
	"tripline/version"
)

const (
	ModeInit         = "init"
	ModeCheck        = "check"
	ModeUpdate       = "update"
	ModeUpdatePolicy = "update-policy"
	ModeKeygen       = "keygen"
	ModePrintReport  = "print-report"
)

var modes = []string{ModeInit, ModeCheck, ModeUpdate, ModeUpdatePolicy, ModeKeygen, ModePrintReport}

type Config struct {
	Mode                   string            `json:"mode"`
	PolicyFile             string            `json:"policy_file"`
	NewPolicyFile          string            `json:"new_policy_file"`
	DatabaseFile           string            `json:"database_file"`
	ReportFile             string            `json:"report_file"`
	ReportJSON             string            `json:"report_json"`
	ReportFormat           string            `json:"report_format"`
	ReportLevel            int               `json:"report_level"`
	SiteKey                string            `json:"site_key"`
	LocalKey               string            `json:"local_key"`
	PassphraseEnv          string            `json:"passphrase_env"`
	RequireSigned          bool              `json:"require_signed"`
	LogLevel               string            `json:"log_level"`
	Severity               string            `json:"severity"`
	RuleNames              []string          `json:"rule_names"`
	SecureMode             bool              `json:"secure_mode"`
	LooseDirectoryChecking bool              `json:"loose_directory_checking"`
	EraseFootprints        bool              `json:"erase_footprints"`
	DirectIO               bool              `json:"direct_io"`
	HashReadMode           string            `json:"hash_read_mode"`
	CrossFileSystems       bool              `json:"cross_filesystems"`
	Compress               bool              `json:"compress"`
	ReplaceAll             bool              `json:"replace_all"`
	MaxIOPerSecond         int               `json:"max_io_per_second"`
	Timeout                time.Duration     `json:"timeout"`
	Progress               bool              `json:"progress"`
	ConfigFile             string            `json:"config_file"`
	DiagStallThreshold     time.Duration     `json:"diag_stall_threshold"`
	DiagDir                string            `json:"diag_dir"`
	DiagGoroutineLeak      bool              `json:"diag_goroutine_leak"`
	OtelEndpoint           string            `json:"otel_endpoint"`
	OtelFromEnv            bool              `json:"otel_from_env"`
	OtelHeaders            map[string]string `json:"otel_headers"`
	OtelServiceName        string            `json:"otel_service_name"`
	OtelTimeout            time.Duration     `json:"otel_timeout"`
	OtelExportPaths        bool              `json:"otel_export_paths"`
	OtelExportHost         bool              `json:"otel_export_host"`
	TraceFile              string            `json:"trace_file"`
	CheckUpdate            bool              `json:"check_update"`
	UpdateURL              string            `json:"update_url"`
	TraceFlight            bool              `json:"trace_flight"`
	TraceFlightFile        string            `json:"trace_flight_file"`
	TraceFlightMaxBytes    uint64            `json:"trace_flight_max_bytes"`
	TraceFlightMinAge      time.Duration     `json:"trace_flight_min_age"`
	// MinSeverity is Severity parsed by validate.
	MinSeverity int  `json:"-"`
	MaxIOSet    bool `json:"-"`
}

// Default returns the configuration used before the config file and flags
// are applied.
func Default() *Config {
	return &Config{
		Mode:            ModeCheck,
		PolicyFile:      "tripline.pol.yaml",
		DatabaseFile:    "tripline.twd",
		ReportFile:      fmt.Sprintf("tripline-%s.twr", time.Now().UTC().Format("20060102-150405")),
		ReportFormat:    "json",
		ReportLevel:     1,
		SiteKey:         "tripline.pub",
		LocalKey:        "tripline.key",
		PassphraseEnv:   "TRIPLINE_PASSPHRASE",
		LogLevel:        "info",
		HashReadMode:    string(hasher.ModeAuto),
		Compress:        true,
		MaxIOPerSecond:  0,
		Progress:        true,
		DiagDir:         ".",
		OtelHeaders:     map[string]string{},
		OtelServiceName: "tripline",
		OtelTimeout:     5 * time.Second,
		TraceFlightFile: "trace-flight.out",
		UpdateURL:       release.DefaultURL,
	}
}

// LoadConfig layers the defaults, the --config file and explicit flags, in
// that order. The mode may be given as the first argument ("tripline check
// --severity high") or with --mode.
func LoadConfig() (*Config, error) {
	cfg := Default()
	fs := flag.CommandLine

	args := os.Args[1:]
	positional := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional, args = args[0], args[1:]
	}

	mode := fs.String("mode", cfg.Mode, fmt.Sprintf("Operation: %s (default: %s).", strings.Join(modes, ", "), cfg.Mode))
	configFile := fs.String("config", "", "Path to a JSON configuration file.")
	policyFile := fs.String("policy", cfg.PolicyFile, fmt.Sprintf("Policy file (default: %s).", cfg.PolicyFile))
	newPolicyFile := fs.String("new-policy", "", "Replacement policy file for update-policy.")
	dbFile := fs.String("db", cfg.DatabaseFile, fmt.Sprintf("Database file (default: %s).", cfg.DatabaseFile))
	reportFile := fs.String("report", cfg.ReportFile, "Report file written by check and read by update (default: tripline-<timestamp>.twr).")
	reportJSON := fs.String("report-json", "", "Also export the report as NDJSON or CSV to this file (default: none).")
	reportFormat := fs.String("report-format", cfg.ReportFormat, "Export format for --report-json: json or csv (default: json).")
	reportLevel := fs.Int("report-level", cfg.ReportLevel, "Console report detail: 0 summary, 1 objects, 2 properties (default: 1).")
	siteKey := fs.String("site-key", cfg.SiteKey, fmt.Sprintf("Public key used to verify signed files (default: %s).", cfg.SiteKey))
	localKey := fs.String("local-key", cfg.LocalKey, fmt.Sprintf("Private key used to sign written files (default: %s).", cfg.LocalKey))
	passphraseEnv := fs.String("passphrase-env", cfg.PassphraseEnv, fmt.Sprintf("Environment variable holding the key passphrase (default: %s).", cfg.PassphraseEnv))
	requireSigned := fs.Bool("require-signed", cfg.RequireSigned, "Refuse unsigned database and report files (default: false).")
	logLevel := fs.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	severity := fs.String("severity", "", "Only check rules at or above this severity: low, medium, high or 0-1000 (default: all).")
	ruleNames := fs.String("rules", "", "Comma-separated rule names to check (default: all).")
	secureMode := fs.Bool("secure-mode", cfg.SecureMode, "Abort update or update-policy on any conflict or violation (default: false).")
	looseDir := fs.Bool("loose-directory-checking", cfg.LooseDirectoryChecking, "Ignore directory properties that change when entries are added or removed (default: false).")
	eraseFootprints := fs.Bool("erase-footprints", cfg.EraseFootprints, "Restore access times after reading file contents (default: false).")
	directIO := fs.Bool("direct-io", cfg.DirectIO, "Bypass the page cache when hashing (default: false).")
	hashReadMode := fs.String("hash-read-mode", cfg.HashReadMode, "Hash read mode: auto, stream, mmap or direct (default: auto).")
	crossFS := fs.Bool("cross-filesystems", cfg.CrossFileSystems, "Descend into other mounted filesystems (default: false).")
	compress := fs.Bool("compress", cfg.Compress, "Compress written database and report files (default: true).")
	replaceAll := fs.Bool("replace-all", cfg.ReplaceAll, "On update, replace every stored property of changed objects (default: false).")
	maxIO := fs.Int("max-io-per-second", cfg.MaxIOPerSecond, "Maximum objects read per second, 0 for unlimited (default: 0).")
	timeout := fs.Duration("timeout", cfg.Timeout, "Abort the operation after this long, 0 for no limit (default: 0).")
	progress := fs.Bool("progress", cfg.Progress, "Show a progress spinner on stderr (default: true).")
	diagStall := fs.Duration("diag-stall-threshold", cfg.DiagStallThreshold, "If positive, write diagnostics when progress stalls for this long (default: 0/off).")
	diagDir := fs.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	diagGoroutineLeak := fs.Bool("diag-goroutine-leak", cfg.DiagGoroutineLeak, "Write goroutine leak profile on shutdown (default: false).")
	otelEndpoint := fs.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := fs.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := fs.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := fs.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: tripline).")
	otelTimeout := fs.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := fs.Bool("otel-export-paths", cfg.OtelExportPaths, "Include object paths in OTEL payloads (default: false).")
	otelExportHost := fs.Bool("otel-export-host", cfg.OtelExportHost, "Include host id, address and user in OTEL payloads (default: false).")
	checkUpdate := fs.Bool("check-update", cfg.CheckUpdate, "Query the release feed for a newer version before running (default: false).")
	updateURL := fs.String("update-url", cfg.UpdateURL, "Release feed queried by --check-update.")
	traceFile := fs.String("trace", "", "Write a runtime execution trace to this file (trace builds only).")
	traceFlight := fs.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := fs.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := fs.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := fs.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = displayHelp
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		fmt.Printf("Tripline version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "policy":
			cfg.PolicyFile = *policyFile
		case "new-policy":
			cfg.NewPolicyFile = *newPolicyFile
		case "db":
			cfg.DatabaseFile = *dbFile
		case "report":
			cfg.ReportFile = *reportFile
		case "report-json":
			cfg.ReportJSON = *reportJSON
		case "report-format":
			cfg.ReportFormat = *reportFormat
		case "report-level":
			cfg.ReportLevel = *reportLevel
		case "site-key":
			cfg.SiteKey = *siteKey
		case "local-key":
			cfg.LocalKey = *localKey
		case "passphrase-env":
			cfg.PassphraseEnv = *passphraseEnv
		case "require-signed":
			cfg.RequireSigned = *requireSigned
		case "log-level":
			cfg.LogLevel = *logLevel
		case "severity":
			cfg.Severity = *severity
		case "rules":
			cfg.RuleNames = parseCommaSeparated(*ruleNames)
		case "secure-mode":
			cfg.SecureMode = *secureMode
		case "loose-directory-checking":
			cfg.LooseDirectoryChecking = *looseDir
		case "erase-footprints":
			cfg.EraseFootprints = *eraseFootprints
		case "direct-io":
			cfg.DirectIO = *directIO
		case "hash-read-mode":
			cfg.HashReadMode = *hashReadMode
		case "cross-filesystems":
			cfg.CrossFileSystems = *crossFS
		case "compress":
			cfg.Compress = *compress
		case "replace-all":
			cfg.ReplaceAll = *replaceAll
		case "max-io-per-second":
			cfg.MaxIOPerSecond = *maxIO
			cfg.MaxIOSet = true
		case "timeout":
			cfg.Timeout = *timeout
		case "progress":
			cfg.Progress = *progress
		case "diag-stall-threshold":
			cfg.DiagStallThreshold = *diagStall
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "diag-goroutine-leak":
			cfg.DiagGoroutineLeak = *diagGoroutineLeak
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "otel-export-host":
			cfg.OtelExportHost = *otelExportHost
		case "trace":
			cfg.TraceFile = *traceFile
		case "check-update":
			cfg.CheckUpdate = *checkUpdate
		case "update-url":
			cfg.UpdateURL = *updateURL
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})
	if positional != "" {
		cfg.Mode = positional
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("Tripline - host file integrity monitor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tripline <mode> [options]")
	fmt.Println()
	fmt.Println("Modes:")
	fmt.Println("  keygen         create the signing key pair")
	fmt.Println("  init           build the baseline database from the policy")
	fmt.Println("  check          compare the system against the database and write a report")
	fmt.Println("  update         accept the changes listed in a report into the database")
	fmt.Println("  update-policy  switch the database to a new policy")
	fmt.Println("  print-report   render a saved report")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tripline init --policy /etc/tripline/policy.yaml --db /var/lib/tripline/host.twd")
	fmt.Println("  tripline check --severity high --report-json /tmp/check.ndjson")
	fmt.Println("  tripline update --report /var/lib/tripline/report/last.twr --secure-mode")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	if _, ok := raw["max_io_per_second"]; ok {
		cfg.MaxIOSet = true
	}
	err = json.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.ReportFormat = strings.ToLower(strings.TrimSpace(cfg.ReportFormat))
	cfg.HashReadMode = strings.ToLower(strings.TrimSpace(cfg.HashReadMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.ReportFormat == "" {
		cfg.ReportFormat = "json"
	}
	if cfg.HashReadMode == "" {
		cfg.HashReadMode = string(hasher.ModeAuto)
	}
	if cfg.DiagDir == "" {
		cfg.DiagDir = "."
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
	if cfg.OtelHeaders == nil {
		cfg.OtelHeaders = map[string]string{}
	}
}

func (cfg *Config) validate() error {
	if !containsString(modes, cfg.Mode) {
		return fmt.Errorf("invalid mode: %q (expected one of %s)", cfg.Mode, strings.Join(modes, ", "))
	}
	switch cfg.Mode {
	case ModeInit, ModeCheck, ModeUpdatePolicy:
		if cfg.PolicyFile == "" {
			return fmt.Errorf("--policy is required for %s", cfg.Mode)
		}
	}
	if cfg.Mode != ModeKeygen && cfg.Mode != ModePrintReport && cfg.DatabaseFile == "" {
		return fmt.Errorf("--db is required for %s", cfg.Mode)
	}
	if cfg.Mode == ModeUpdatePolicy && cfg.NewPolicyFile == "" {
		return fmt.Errorf("--new-policy is required for update-policy")
	}
	if (cfg.Mode == ModeUpdate || cfg.Mode == ModePrintReport) && cfg.ReportFile == "" {
		return fmt.Errorf("--report is required for %s", cfg.Mode)
	}
	if cfg.Mode == ModeKeygen && (cfg.SiteKey == "" || cfg.LocalKey == "") {
		return fmt.Errorf("--site-key and --local-key are required for keygen")
	}
	if cfg.ReportFormat != "json" && cfg.ReportFormat != "csv" {
		return fmt.Errorf("invalid report format: %s (json or csv)", cfg.ReportFormat)
	}
	if cfg.ReportLevel < 0 || cfg.ReportLevel > 2 {
		return fmt.Errorf("report-level must be 0, 1 or 2")
	}
	sev, err := policy.ParseSeverity(cfg.Severity)
	if err != nil {
		return fmt.Errorf("invalid severity: %v", err)
	}
	cfg.MinSeverity = sev
	if _, err := hasher.ParseReadMode(cfg.HashReadMode); err != nil {
		return fmt.Errorf("invalid hash-read-mode value: %s", cfg.HashReadMode)
	}
	if cfg.DirectIO && cfg.HashReadMode == string(hasher.ModeMmap) {
		return fmt.Errorf("direct-io cannot be combined with hash-read-mode mmap")
	}
	if cfg.MaxIOPerSecond < 0 {
		return fmt.Errorf("max-io-per-second must be zero or positive")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must be zero or positive")
	}
	if cfg.DiagStallThreshold < 0 {
		return fmt.Errorf("diag-stall-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

// Passphrase reads the key passphrase from the configured environment
// variable.
func (cfg *Config) Passphrase() ([]byte, error) {
	if cfg.PassphraseEnv == "" {
		return nil, fmt.Errorf("no passphrase source configured")
	}
	value, ok := os.LookupEnv(cfg.PassphraseEnv)
	if !ok || value == "" {
		return nil, fmt.Errorf("passphrase variable %s is not set", cfg.PassphraseEnv)
	}
	return []byte(value), nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
