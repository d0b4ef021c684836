package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"tripline/archive"
	"tripline/config"
	"tripline/diag"
	"tripline/engine"
	"tripline/errqueue"
	"tripline/fco"
	"tripline/genre"
	"tripline/hasher"
	"tripline/hierdb"
	"tripline/keyfile"
	"tripline/logger"
	"tripline/output"
	"tripline/policy"
	"tripline/report"
	"tripline/systeminfo"
	"tripline/tracing"
	"tripline/utils"
	"tripline/version"
)

type app struct {
	cfg      *config.Config
	env      *engine.Env
	errs     *errqueue.Queue
	progress *progressTracker
	watchdog *diag.Watchdog
	identity func() systeminfo.Identity
	stdout   io.Writer
}

func newApp(cfg *config.Config) *app {
	errs := errqueue.NewLogging()
	readMode, _ := hasher.ParseReadMode(cfg.HashReadMode)
	a := &app{
		cfg:      cfg,
		errs:     errs,
		progress: newProgressTracker(cfg.Progress, progressLabel(cfg.Mode)),
		identity: systeminfo.Gather,
		stdout:   os.Stdout,
	}
	a.env = &engine.Env{
		Genres:           genre.Default(),
		Errors:           errs,
		CrossFileSystems: cfg.CrossFileSystems,
		ReadMode:         readMode,
		Progress:         a.progress.Visit,
	}
	if cfg.MaxIOPerSecond > 0 {
		a.env.Limiter = rate.NewLimiter(rate.Limit(cfg.MaxIOPerSecond), cfg.MaxIOPerSecond)
	}
	return a
}

func progressLabel(mode string) string {
	switch mode {
	case config.ModeInit:
		return "Building database"
	case config.ModeCheck:
		return "Checking"
	case config.ModeUpdate:
		return "Updating database"
	case config.ModeUpdatePolicy:
		return "Updating policy"
	}
	return mode
}

func (a *app) close() {
	a.watchdog.Close()
}

func (a *app) dispatch(ctx context.Context) (int, error) {
	ctx, endTask := tracing.StartTask(ctx, "tripline."+a.cfg.Mode)
	defer endTask()

	switch a.cfg.Mode {
	case config.ModeKeygen:
		return 0, a.keygen()
	case config.ModePrintReport:
		return a.printReport()
	}

	a.startWatchdog(ctx)
	defer a.progress.Finish()
	switch a.cfg.Mode {
	case config.ModeInit:
		return 0, a.initDatabase(ctx)
	case config.ModeCheck:
		return a.check(ctx)
	case config.ModeUpdate:
		return a.update(ctx)
	case config.ModeUpdatePolicy:
		return a.updatePolicy(ctx)
	}
	return exitFailure, fmt.Errorf("unknown mode %q", a.cfg.Mode)
}

func (a *app) startWatchdog(ctx context.Context) {
	if a.cfg.DiagStallThreshold <= 0 && !a.cfg.DiagGoroutineLeak {
		return
	}
	opts := diag.Options{
		StallThreshold: a.cfg.DiagStallThreshold,
		Dir:            a.cfg.DiagDir,
		GoroutineLeak:  a.cfg.DiagGoroutineLeak,
		Progress:       a.progress.Snapshot,
	}
	if a.cfg.TraceFlight {
		opts.DumpFlightRecorder = tracing.WriteFlightRecorder
	}
	a.watchdog = diag.NewWatchdog(opts)
	a.watchdog.Start(ctx)
}

func (a *app) keygen() error {
	for _, path := range []string{a.cfg.SiteKey, a.cfg.LocalKey} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, remove it first", path)
		}
	}
	pass, err := a.cfg.Passphrase()
	if err != nil {
		return err
	}
	defer clear(pass)
	pub, priv, err := keyfile.Generate(pass)
	if err != nil {
		return err
	}
	if err := keyfile.SavePrivate(a.cfg.LocalKey, priv); err != nil {
		return err
	}
	if err := keyfile.SavePublic(a.cfg.SiteKey, pub); err != nil {
		return err
	}
	logger.Infof("Key pair written to %s and %s (fingerprint %s)", a.cfg.SiteKey, a.cfg.LocalKey, pub.Fingerprint())
	return nil
}

// signingRequired is true once a site key exists: files are then only
// accepted with a valid signature.
func (a *app) signingRequired() bool {
	return a.cfg.RequireSigned || fileExists(a.cfg.SiteKey)
}

// seal runs write with the options for a new file, signing it when a local
// key is present.
func (a *app) seal(write func(archive.SealOptions) error) error {
	opts := archive.SealOptions{Compress: a.cfg.Compress}
	if !fileExists(a.cfg.LocalKey) {
		if a.signingRequired() {
			return fmt.Errorf("local key %q not found, refusing to write an unsigned file", a.cfg.LocalKey)
		}
		logger.Warnf("No local key at %q, writing unsigned file", a.cfg.LocalKey)
		return write(opts)
	}
	pass, err := a.cfg.Passphrase()
	if err != nil {
		return err
	}
	defer clear(pass)
	return keyfile.WithSigner(a.cfg.LocalKey, pass, func(s archive.Signer) error {
		opts.Signer = s
		return write(opts)
	})
}

func (a *app) openOptions() (archive.OpenOptions, error) {
	opts := archive.OpenOptions{RequireSignature: a.signingRequired()}
	if !fileExists(a.cfg.SiteKey) {
		if a.cfg.RequireSigned {
			return opts, fmt.Errorf("site key %q not found, cannot verify signed files", a.cfg.SiteKey)
		}
		return opts, nil
	}
	pub, err := keyfile.LoadPublic(a.cfg.SiteKey)
	if err != nil {
		return opts, err
	}
	opts.Verifier = pub
	return opts, nil
}

func (a *app) loadPolicy(path string) (*policy.Policy, error) {
	pol, err := policy.Load(path, a.env.Genres)
	if err != nil {
		return nil, err
	}
	return pol, nil
}

func (a *app) loadDatabase() (*hierdb.DatabaseFile, error) {
	opts, err := a.openOptions()
	if err != nil {
		return nil, err
	}
	return hierdb.Load(a.cfg.DatabaseFile, opts)
}

func (a *app) saveDatabase(db *hierdb.DatabaseFile) error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DatabaseFile), 0o700); err != nil {
		return err
	}
	return a.seal(func(opts archive.SealOptions) error {
		return hierdb.Save(a.cfg.DatabaseFile, db, opts)
	})
}

func (a *app) stampDatabase(db *hierdb.DatabaseFile) {
	id := a.identity()
	db.Header.Creator = id.Creator
	db.Header.SystemName = id.SystemName
	db.Header.IPAddress = id.IPAddress
	db.Header.HostID = id.HostID
	db.Header.PolicyFile = a.cfg.PolicyFile
	db.Header.ConfigFile = a.cfg.ConfigFile
	db.Header.DBFile = a.cfg.DatabaseFile
	db.Header.Version = version.Version
}

func (a *app) stampReport(rep *report.Report) {
	id := a.identity()
	rep.Header.Creator = id.Creator
	rep.Header.SystemName = id.SystemName
	rep.Header.IPAddress = id.IPAddress
	rep.Header.HostID = id.HostID
	rep.Header.PolicyFile = a.cfg.PolicyFile
	rep.Header.ConfigFile = a.cfg.ConfigFile
	rep.Header.DBFile = a.cfg.DatabaseFile
	rep.Header.Version = version.Version
}

// warnSelfMonitoring flags written files that lie under a filesystem rule;
// they would show as changed on every check.
func (a *app) warnSelfMonitoring(pol *policy.Policy) {
	specs := pol.Specs(fco.GenreFS)
	if specs == nil {
		return
	}
	var roots []string
	for _, s := range specs.Specs() {
		roots = append(roots, s.StartPoint.String())
	}
	guard := utils.NewPathGuard(roots)
	for _, path := range []string{a.cfg.DatabaseFile, a.cfg.ReportFile} {
		if path == "" || !guard.Contains(path) {
			continue
		}
		if owner := specs.Match(fco.ParsePath(absPath(path))); owner != nil {
			logger.Warnf("%s lies inside rule %q and will be reported as changed", path, owner.Name)
		}
	}
}

func (a *app) initDatabase(ctx context.Context) error {
	if fileExists(a.cfg.DatabaseFile) {
		logger.Warnf("Overwriting existing database %s", a.cfg.DatabaseFile)
	}
	pol, err := a.loadPolicy(a.cfg.PolicyFile)
	if err != nil {
		return err
	}
	a.warnSelfMonitoring(pol)

	db, err := engine.Init(ctx, a.env, pol, a.genFlags())
	if err != nil {
		return err
	}
	a.stampDatabase(db)
	if err := a.saveDatabase(db); err != nil {
		return err
	}
	objects := 0
	for _, g := range db.Genres() {
		gdb, _ := db.Genre(g)
		objects += gdb.Tree.Len()
	}
	logger.Infof("Database %s written: %d objects, %d errors", a.cfg.DatabaseFile, objects, a.errs.Len())
	return nil
}

func (a *app) check(ctx context.Context) (int, error) {
	pol, err := a.loadPolicy(a.cfg.PolicyFile)
	if err != nil {
		return exitFailure, err
	}
	db, err := a.loadDatabase()
	if err != nil {
		return exitFailure, err
	}
	a.warnSelfMonitoring(pol)
	if db.Header.PolicyDigest != "" && db.Header.PolicyDigest != pol.Digest {
		logger.Warnf("Policy %s changed since the database was written; run update-policy to adopt it", a.cfg.PolicyFile)
	}

	opts := engine.CheckOptions{
		Flags:       a.checkFlags(),
		MinSeverity: a.cfg.MinSeverity,
		RuleNames:   a.cfg.RuleNames,
	}
	rep, err := engine.Check(ctx, a.env, db, pol, opts)
	if err != nil {
		return exitFailure, err
	}
	a.stampReport(rep)
	a.progress.Finish()

	if a.cfg.ReportFile != "" {
		if err := a.seal(func(o archive.SealOptions) error {
			return report.Save(a.cfg.ReportFile, rep, o)
		}); err != nil {
			return exitFailure, fmt.Errorf("save report: %w", err)
		}
		logger.Infof("Report written to %s", a.cfg.ReportFile)
	}
	return a.present(rep)
}

// present exports rep and prints it, returning the exit status.
func (a *app) present(rep *report.Report) (int, error) {
	w, err := output.New(a.cfg)
	if err != nil {
		return exitFailure, fmt.Errorf("open export: %w", err)
	}
	if err := w.WriteReport(rep); err != nil {
		w.Close()
		return exitFailure, err
	}
	if err := w.Close(); err != nil {
		return exitFailure, err
	}
	if err := output.WriteText(a.stdout, rep, a.cfg.ReportLevel); err != nil {
		return exitFailure, err
	}
	return exitCode(rep.Summary()), nil
}

func (a *app) printReport() (int, error) {
	opts, err := a.openOptions()
	if err != nil {
		return exitFailure, err
	}
	rep, err := report.Load(a.cfg.ReportFile, opts)
	if err != nil {
		return exitFailure, err
	}
	return a.present(rep)
}

func (a *app) update(ctx context.Context) (int, error) {
	db, err := a.loadDatabase()
	if err != nil {
		return exitFailure, err
	}
	opts, err := a.openOptions()
	if err != nil {
		return exitFailure, err
	}
	rep, err := report.Load(a.cfg.ReportFile, opts)
	if err != nil {
		return exitFailure, err
	}

	res, err := engine.ApplyReport(ctx, a.env, db, rep, a.updateFlags())
	if err != nil {
		if errors.Is(err, engine.ErrSecureModeAbort) {
			logger.Errorf("Secure mode: %d conflict(s), database left unchanged", len(res.Conflicts))
		}
		return exitFailure, err
	}
	if err := a.saveDatabase(db); err != nil {
		return exitFailure, err
	}
	logger.Infof("Database %s updated: %d entries applied, %d conflicts", a.cfg.DatabaseFile, res.Applied, len(res.Conflicts))
	if !res.Success {
		return exitChanged, nil
	}
	return 0, nil
}

func (a *app) updatePolicy(ctx context.Context) (int, error) {
	oldPol, err := a.loadPolicy(a.cfg.PolicyFile)
	if err != nil {
		return exitFailure, err
	}
	newPol, err := a.loadPolicy(a.cfg.NewPolicyFile)
	if err != nil {
		return exitFailure, err
	}
	db, err := a.loadDatabase()
	if err != nil {
		return exitFailure, err
	}
	a.warnSelfMonitoring(newPol)

	clean, err := engine.ApplyPolicy(ctx, a.env, db, oldPol, newPol, a.policyFlags())
	if err != nil {
		return exitFailure, err
	}
	db.Header.PolicyFile = a.cfg.NewPolicyFile
	if err := a.saveDatabase(db); err != nil {
		return exitFailure, err
	}
	if !clean {
		logger.Warnf("Policy updated with %d violation(s), see the log above", a.errs.Count(errqueue.KindViolation))
		return exitChanged, nil
	}
	logger.Infof("Policy of %s updated to %s", a.cfg.DatabaseFile, a.cfg.NewPolicyFile)
	return 0, nil
}

func (a *app) genFlags() engine.GenFlags {
	var f engine.GenFlags
	if a.cfg.EraseFootprints {
		f |= engine.GenEraseFootprints
	}
	if a.cfg.DirectIO {
		f |= engine.GenDirectIO
	}
	return f
}

func (a *app) checkFlags() engine.CheckFlags {
	var f engine.CheckFlags
	if a.cfg.LooseDirectoryChecking {
		f |= engine.CheckLooseDir
	}
	if a.cfg.EraseFootprints {
		f |= engine.CheckEraseFootprints
	}
	if a.cfg.DirectIO {
		f |= engine.CheckDirectIO
	}
	return f
}

func (a *app) updateFlags() engine.UpdateFlags {
	var f engine.UpdateFlags
	if a.cfg.ReplaceAll {
		f |= engine.UpdateReplaceAll
	}
	if a.cfg.SecureMode {
		f |= engine.UpdateSecureMode
	}
	if a.cfg.EraseFootprints {
		f |= engine.UpdateEraseFootprints
	}
	if a.cfg.DirectIO {
		f |= engine.UpdateDirectIO
	}
	return f
}

func (a *app) policyFlags() engine.PolicyFlags {
	var f engine.PolicyFlags
	if a.cfg.SecureMode {
		f |= engine.PolicySecureMode
	}
	if a.cfg.EraseFootprints {
		f |= engine.PolicyEraseFootprints
	}
	if a.cfg.DirectIO {
		f |= engine.PolicyDirectIO
	}
	return f
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
