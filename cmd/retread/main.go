package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/a-h/retread/config"
	"github.com/a-h/retread/download"
	"github.com/a-h/retread/metrics"
	"github.com/a-h/retread/routes"
	"github.com/a-h/retread/save"
	"github.com/a-h/retread/storage"
	"github.com/a-h/retread/upstream"
	"github.com/a-h/retread/wheel"
	"github.com/alecthomas/kong"
)

type Globals struct {
	Verbose bool `help:"Enable verbose logging" short:"v" default:"false"`
}

func (g Globals) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{}
	if g.Verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

type CLI struct {
	Globals
	Version  VersionCmd  `cmd:"" help:"Show version information"`
	Rename   RenameCmd   `cmd:"" help:"Rename a wheel package"`
	Inspect  InspectCmd  `cmd:"" help:"Inspect a wheel's structure"`
	Download DownloadCmd `cmd:"" help:"Download a compatible wheel from a package index"`
	Save     SaveCmd     `cmd:"" help:"Save renamed wheels to local or S3 storage"`
	Serve    ServeCmd    `cmd:"" help:"Start a renaming package index proxy"`
}

var Version = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(globals *Globals) error {
	fmt.Printf("%s", Version)
	return nil
}

type RenameCmd struct {
	Wheel            string   `arg:"" help:"Path to the wheel file to rename"`
	NewName          string   `arg:"" help:"New package name (e.g. icechunk_v1)"`
	Output           string   `help:"Output directory for the renamed wheel (default: same as input)" short:"o"`
	NoImports        bool     `help:"Do not rewrite import statements in Python files" default:"false"`
	DependencyRename []string `help:"Rewrite a renamed dependency in METADATA (format: old=new)"`
}

func (cmd *RenameCmd) Run(globals *Globals) error {
	dependencyRenames := make(map[string]string, len(cmd.DependencyRename))
	for _, arg := range cmd.DependencyRename {
		rule, err := config.ParseRenameRule(arg)
		if err != nil {
			return err
		}
		dependencyRenames[rule.Original] = rule.NewName
	}

	outputPath, err := wheel.Rename(cmd.Wheel, cmd.NewName, wheel.Options{
		OutputDir:         cmd.Output,
		SkipImports:       cmd.NoImports,
		DependencyRenames: dependencyRenames,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", outputPath)
	return nil
}

type InspectCmd struct {
	Wheel string `arg:"" help:"Path to the wheel file to inspect"`
	JSON  bool   `help:"Output as JSON" default:"false"`
}

func (cmd *InspectCmd) Run(globals *Globals) error {
	info, err := wheel.Inspect(cmd.Wheel)
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Printf("Wheel:        %s\n", info.Filename)
	fmt.Printf("Distribution: %s\n", info.Components.Distribution)
	fmt.Printf("Version:      %s\n", info.Components.Version)
	fmt.Printf("Python:       %s\n", info.Components.PythonTag)
	fmt.Printf("ABI:          %s\n", info.Components.ABITag)
	fmt.Printf("Platform:     %s\n", info.Components.PlatformTag)
	fmt.Printf("Files:        %d\n", len(info.Files))
	for _, ext := range info.Extensions {
		fmt.Printf("Extension:    %s (%s)\n", ext.Path, ext.Safety)
	}
	if info.SafeToRename() {
		fmt.Println("Renaming this wheel is expected to work.")
		return nil
	}
	fmt.Println("This wheel has extensions without an underscore prefix; renaming may cause import errors.")
	return nil
}

type DownloadCmd struct {
	Package       string `arg:"" help:"Name of the package to download"`
	Output        string `help:"Output directory for the downloaded wheel" short:"o" default:"."`
	IndexURL      string `help:"Base URL of the package index" short:"i" default:"https://pypi.org/simple/"`
	Version       string `help:"PEP 440 version specifier (e.g. '<2', '>=1.0,<2')"`
	PythonVersion string `help:"Target Python version" default:"3.13"`
	Rename        string `help:"Rename the downloaded wheel to this package name"`
}

func (cmd *DownloadCmd) Run(globals *Globals) error {
	log := globals.Logger()
	client := upstream.New(log, []string{cmd.IndexURL})
	outputPath, err := download.Fetch(context.Background(), log, client, cmd.Package, cmd.Output, download.Options{
		VersionSpec:   cmd.Version,
		PythonVersion: cmd.PythonVersion,
		Rename:        cmd.Rename,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", outputPath)
	return nil
}

type SaveCmd struct {
	Rename            []string `help:"Rename rule (format: original=new_name[:version_spec])" short:"r" required:""`
	Upstream          []string `help:"Upstream index URL in priority order" short:"u" default:"https://pypi.org/simple/"`
	Dir               string   `help:"Directory to save wheels to" default:".retread-storage" env:"RETREAD_DIR"`
	S3Bucket          string   `help:"S3 bucket to save wheels to (overrides --dir)" env:"RETREAD_S3_BUCKET"`
	S3Prefix          string   `help:"Key prefix within the S3 bucket" env:"RETREAD_S3_PREFIX"`
	S3Region          string   `help:"S3 region" env:"RETREAD_S3_REGION"`
	S3Endpoint        string   `help:"Custom S3 endpoint URL" env:"RETREAD_S3_ENDPOINT"`
	S3ForcePathStyle  bool     `help:"Use path-style S3 addressing" env:"RETREAD_S3_FORCE_PATH_STYLE"`
	S3AccessKeyID     string   `help:"S3 access key ID" env:"RETREAD_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string   `help:"S3 secret access key" env:"RETREAD_S3_SECRET_ACCESS_KEY"`
}

func (cmd *SaveCmd) Run(globals *Globals) error {
	log := globals.Logger()
	ctx := context.Background()

	rules := make([]config.RenameRule, len(cmd.Rename))
	for i, arg := range cmd.Rename {
		rule, err := config.ParseRenameRule(arg)
		if err != nil {
			return err
		}
		rules[i] = rule
	}

	var store storage.Storage
	if cmd.S3Bucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cmd.S3Bucket,
			Prefix:          cmd.S3Prefix,
			Region:          cmd.S3Region,
			Endpoint:        cmd.S3Endpoint,
			AccessKeyID:     cmd.S3AccessKeyID,
			SecretAccessKey: cmd.S3SecretAccessKey,
			ForcePathStyle:  cmd.S3ForcePathStyle,
		})
		if err != nil {
			return err
		}
		store = s3
	} else {
		store = storage.NewFileSystem(cmd.Dir)
	}

	client := upstream.New(log, cmd.Upstream)
	return save.New(log, client, store).Save(ctx, rules)
}

type ServeCmd struct {
	Config      string   `help:"Path to TOML config file" short:"c"`
	Upstream    []string `help:"Upstream index URL in priority order (overrides config file)" short:"u" env:"RETREAD_UPSTREAMS"`
	Rename      []string `help:"Rename rule (format: original=new_name[:version_spec], overrides config file)" short:"r"`
	Host        string   `help:"Host to bind to" env:"RETREAD_HOST"`
	Port        int      `help:"Port to listen on" env:"RETREAD_PORT"`
	MetricsAddr string   `help:"Address to serve Prometheus metrics on (empty to disable)" env:"RETREAD_METRICS_ADDR"`
}

func (cmd *ServeCmd) Run(globals *Globals) error {
	log := globals.Logger()

	cfg := config.Default()
	if cmd.Config != "" {
		var err error
		cfg, err = config.Load(cmd.Config)
		if err != nil {
			return err
		}
	}
	if len(cmd.Upstream) > 0 {
		cfg.Upstreams = cmd.Upstream
	}
	if len(cmd.Rename) > 0 {
		cfg.Renames = cfg.Renames[:0]
		for _, arg := range cmd.Rename {
			rule, err := config.ParseRenameRule(arg)
			if err != nil {
				return err
			}
			cfg.Renames = append(cfg.Renames, rule)
		}
	}
	if cmd.Host != "" {
		cfg.Host = cmd.Host
	}
	if cmd.Port != 0 {
		cfg.Port = cmd.Port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Upstreams) == 0 {
		return fmt.Errorf("no upstream indexes configured: use --upstream or a config file")
	}
	if len(cfg.Renames) == 0 {
		log.Warn("no rename rules configured, the root listing will be empty")
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}
	if cmd.MetricsAddr != "" {
		go func() {
			if err := metrics.ListenAndServe(cmd.MetricsAddr); err != nil {
				log.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	client := upstream.New(log, cfg.Upstreams)
	for _, rule := range cfg.Renames {
		log.Info("rename rule", slog.String("original", rule.Original), slog.String("name", rule.NewName), slog.String("version", rule.VersionSpec))
	}

	s := http.Server{
		Addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler: routes.New(log, client, cfg, m),
	}
	log.Info("starting proxy", slog.String("addr", s.Addr), slog.Int("upstreams", len(cfg.Upstreams)), slog.Int("renames", len(cfg.Renames)))
	return s.ListenAndServe()
}

func main() {
	cli := CLI{
		Globals: Globals{},
	}

	ctx := kong.Parse(&cli,
		kong.Name("retread"),
		kong.Description("Rename Python wheels so multiple versions of a package can be installed side by side"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
