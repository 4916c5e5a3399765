// Package main is the Quill CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/cli"
	"github.com/hyperjump/quill/internal/config"
	"github.com/hyperjump/quill/internal/fileid"
	"github.com/hyperjump/quill/internal/models"
	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/internal/plan"
	"github.com/hyperjump/quill/internal/provenance"
	"github.com/hyperjump/quill/internal/server"
	"github.com/hyperjump/quill/internal/storage"
	"github.com/hyperjump/quill/internal/watcher"
	"github.com/hyperjump/quill/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/quill/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, so "quill server" from a project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "convert":
		runConvert()
	case "activity":
		runActivity()
	case "version", "--version", "-v":
		fmt.Printf("quill version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components.reapOnStart(ctx, logger)
	go components.Reaper.Run(ctx)

	inboxPlan, err := plan.ParsePlan(cfg.Watch.Plan)
	if err != nil {
		logger.Fatal("Invalid watch plan", zap.Error(err))
	}
	importer := watcher.NewImporter(components.Storage, components.Orchestrator, watcher.ImportConfig{
		WorkspaceID: cfg.Watch.WorkspaceID,
		UserID:      cfg.Watch.UserID,
		UserName:    cfg.Watch.UserName,
		Plan:        inboxPlan,
	}, utils.Named(logger, "inbox"))
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(utils.Named(logger, "watcher")))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		importer.HandleChange,
		importer.HandleRemove,
		watchOpts...,
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Orchestrator,
		components.Storage,
		components.Recorder,
		&cfg.Server,
		logger,
		watchSvc,
		resolvedConfigPath,
		cfg,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	watchSvc.Stop()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

// argsReorder moves any flags (and their values) that appear after the positional argument to the
// front of the slice so that flag.Parse() sees them. Go's flag package stops at the first
// non-flag argument, so "quill convert report.pdf --output json" would otherwise ignore --output.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(s string, allowed ...cli.OutputFormat) (cli.OutputFormat, error) {
	for _, f := range allowed {
		if cli.OutputFormat(s) == f {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// convertOptions identifies who opens the file and on which plan.
type convertOptions struct {
	Plan        string
	WorkspaceID string
	UserID      string
	UserName    string
}

func (o convertOptions) request(sourceID string) (pipeline.Request, error) {
	p, err := plan.ParsePlan(o.Plan)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		SourceDocumentID: sourceID,
		Plan:             p,
		Actor:            provenance.Actor{WorkspaceID: o.WorkspaceID, UserID: o.UserID, UserName: o.UserName},
	}, nil
}

func printConvertUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: quill convert [flags] <file>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  quill convert report.pdf
  quill convert --plan pro --output json notes.docx
  quill convert --server "" --output tree scan.pdf   # run the pipeline in-process
`)
}

func runConvert() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline in-process)")
	planName := fs.String("plan", "free", "subscription plan of the requesting user")
	workspaceID := fs.String("workspace", "", "workspace ID (defaults to the document's workspace)")
	userID := fs.String("user", "", "user ID recorded in the activity feed")
	userName := fs.String("user-name", "", "display name recorded in the activity feed")
	outputFormat := fs.String("output", "text", "output format: text, json, or tree")
	fs.Usage = func() { printConvertUsage(fs) }
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		printConvertUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat, cli.OutputText, cli.OutputJSON, cli.OutputTree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; use text, json, or tree\n", err)
		os.Exit(1)
	}
	opts := convertOptions{Plan: *planName, WorkspaceID: *workspaceID, UserID: *userID, UserName: *userName}
	path := fs.Arg(0)

	var out *pipeline.Outcome
	if *serverURL != "" {
		out, err = convertViaHTTP(*serverURL, path, opts)
	} else {
		out, err = convertInProcess(*configPath, path, opts, format == cli.OutputText)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Convert failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteOutcome(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func convertInProcess(configPath, path string, opts convertOptions, showProgress bool) (*pipeline.Outcome, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	var progress pipeline.ProgressFunc
	if showProgress {
		progress = func(p pipeline.Progress) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Stage, p.Message)
		}
	}
	return convertFile(context.Background(), components.Storage, components.Orchestrator, path, opts, progress)
}

type sourceCreator interface {
	CreateSourceDocument(ctx context.Context, doc *models.SourceDocument) error
}

type opener interface {
	Open(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// convertFile stores the file as a source document and opens it. Converting the same file twice
// reuses the stored source document.
func convertFile(ctx context.Context, store sourceCreator, o opener, path string, opts convertOptions, progress pipeline.ProgressFunc) (*pipeline.Outcome, error) {
	req, err := opts.request("")
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := &models.SourceDocument{
		ID:          fileid.SourceID(abs, content),
		WorkspaceID: opts.WorkspaceID,
		Name:        filepath.Base(abs),
		MediaType:   mime.TypeByExtension(filepath.Ext(abs)),
		Content:     content,
		Metadata:    map[string]interface{}{"origin": "cli", "path": abs},
	}
	if err := store.CreateSourceDocument(ctx, doc); err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	req.SourceDocumentID = doc.ID
	req.Progress = progress
	return o.Open(ctx, req)
}

func convertViaHTTP(serverURL, path string, opts convertOptions) (*pipeline.Outcome, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	upload, err := json.Marshal(map[string]interface{}{
		"name":           filepath.Base(path),
		"media_type":     mime.TypeByExtension(filepath.Ext(path)),
		"workspace_id":   opts.WorkspaceID,
		"content_base64": base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return nil, err
	}
	var doc models.SourceDocument
	if err := postJSON(serverURL+"/api/v1/documents", upload, http.StatusCreated, &doc); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"plan":         opts.Plan,
		"workspace_id": opts.WorkspaceID,
		"user_id":      opts.UserID,
		"user_name":    opts.UserName,
	})
	if err != nil {
		return nil, err
	}
	var out pipeline.Outcome
	if err := postJSON(serverURL+"/api/v1/documents/"+url.PathEscape(doc.ID)+"/open", body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func postJSON(endpoint string, body []byte, wantStatus int, out interface{}) error {
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, wantStatus, out)
}

func decodeResponse(resp *http.Response, wantStatus int, out interface{}) error {
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runActivity() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("activity", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read storage directly)")
	limit := fs.Int("limit", 0, "number of events (0 = configured activity window)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: quill activity [flags] <workspace-id>")
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat, cli.OutputText, cli.OutputJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; use text or json\n", err)
		os.Exit(1)
	}
	workspaceID := fs.Arg(0)

	var events []*models.ActivityEvent
	if *serverURL != "" {
		events, err = activityViaHTTP(*serverURL, workspaceID, *limit)
	} else {
		events, err = activityInProcess(*configPath, workspaceID, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Activity failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteActivity(os.Stdout, events, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func activityInProcess(configPath, workspaceID string, limit int) ([]*models.ActivityEvent, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if limit <= 0 {
		recorder := provenance.NewRecorder(store, provenance.WithWindow(cfg.Activity.Window))
		return recorder.Recent(context.Background(), workspaceID)
	}
	return store.ListActivity(context.Background(), workspaceID, limit)
}

func activityViaHTTP(serverURL, workspaceID string, limit int) ([]*models.ActivityEvent, error) {
	endpoint := serverURL + "/api/v1/workspaces/" + url.PathEscape(workspaceID) + "/activity"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := http.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Events []*models.ActivityEvent `json:"events"`
	}
	if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func printUsage() {
	fmt.Println(`quill - Turn uploaded documents into structured editor documents

Usage:
  quill server [flags]                 Start the HTTP server and inbox watcher
  quill convert [flags] <file>         Open a file in the editor and print the result
  quill activity [flags] <workspace>   Show recent workspace activity
  quill version                        Show version
  quill help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/quill/config.yaml)
  --debug            Enable debug logging

Convert Flags:
  --config string     Config file path (for in-process mode)
  --server string     Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --plan string       Subscription plan: free, starter, pro, business, enterprise (default: free)
  --workspace string  Workspace ID
  --user string       User ID recorded in the activity feed
  --user-name string  Display name recorded in the activity feed
  --output string     Output format: text, json, or tree (default: text)

Activity Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --limit int        Number of events (default: the configured activity window)
  --output string    Output format: text or json (default: text)

Examples:
  quill server
  quill convert report.pdf
  quill convert --plan pro --output json notes.docx
  quill convert --server "" --output tree scan.pdf
  quill activity --user u-1 team-42
  quill activity --output json team-42`)
}
