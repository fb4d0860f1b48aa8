// Command poiesis is the single binary backing every service in the
// engine; SERVICE_TYPE selects which one a given process runs, mirroring
// the teacher's cmd/terrakubed/main.go dispatch.
package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/poiesis-tes/poiesis/internal/api"
	"github.com/poiesis-tes/poiesis/internal/broker"
	"github.com/poiesis-tes/poiesis/internal/config"
	"github.com/poiesis-tes/poiesis/internal/filer"
	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/orchestrator"
	"github.com/poiesis-tes/poiesis/internal/persistence"
	"github.com/poiesis-tes/poiesis/internal/securitycontext"
	"github.com/poiesis-tes/poiesis/internal/tes"
	"github.com/poiesis-tes/poiesis/internal/texam"
	"github.com/poiesis-tes/poiesis/internal/tif"
	"github.com/poiesis-tes/poiesis/internal/tof"
	"github.com/poiesis-tes/poiesis/internal/torc"
)

func main() {
	serviceType := os.Getenv("SERVICE_TYPE")
	if serviceType == "" {
		serviceType = "api"
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load configuration: %v", err)
	}
	log := logging.New(serviceType, logging.ParseLevel(cfg.LogLevel))
	log.Infof("starting poiesis (service type: %s)", serviceType)

	ctx := context.Background()

	switch serviceType {
	case "api":
		runAPI(ctx, cfg, log)
	case "torc":
		runTorc(ctx, cfg, log)
	case "tif":
		runTif(ctx, cfg, log)
	case "texam":
		runTexam(ctx, cfg, log)
	case "tof":
		runTof(ctx, cfg, log)
	default:
		fatal("unknown SERVICE_TYPE %q: supported values are api, torc, tif, texam, tof", serviceType)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, log *logging.Logger) {
	persist, err := persistence.NewMongoPort(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		fatal("connect persistence: %v", err)
	}
	orch := newOrchestrator(cfg, log)

	srv := &api.Server{Persist: persist, Orch: orch, Config: cfg, Log: log}
	if err := srv.Run(); err != nil {
		fatal("api server exited: %v", err)
	}
}

func runTorc(ctx context.Context, cfg *config.Config, log *logging.Logger) {
	taskID, t := loadTask(cfg)

	persist, err := persistence.NewMongoPort(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		fatal("connect persistence: %v", err)
	}
	orch := newOrchestrator(cfg, log)
	brk := broker.NewRedisPort(cfg.MessageBrokerHost, cfg.MessageBrokerPort, cfg.MessageBrokerPassword)
	defer brk.Close()

	infraSecCtx := loadSecurityContext(cfg, log, cfg.InfrastructureSecurityContextEnabled)

	if err := torc.Run(ctx, taskID, t, torc.Deps{
		Persist:     persist,
		Orch:        orch,
		Broker:      brk,
		Config:      cfg,
		InfraSecCtx: infraSecCtx,
		Log:         log,
	}); err != nil {
		fatal("torc failed: %v", err)
	}
}

func runTif(ctx context.Context, cfg *config.Config, log *logging.Logger) {
	taskID, t := loadTask(cfg)
	factory := newFilerFactory(ctx, cfg, log)
	brk := broker.NewRedisPort(cfg.MessageBrokerHost, cfg.MessageBrokerPort, cfg.MessageBrokerPassword)
	defer brk.Close()

	if err := tif.Run(ctx, taskID, t, factory, brk, log); err != nil {
		os.Exit(1)
	}
}

func runTof(ctx context.Context, cfg *config.Config, log *logging.Logger) {
	taskID, t := loadTask(cfg)
	factory := newFilerFactory(ctx, cfg, log)
	brk := broker.NewRedisPort(cfg.MessageBrokerHost, cfg.MessageBrokerPort, cfg.MessageBrokerPassword)
	defer brk.Close()

	if err := tof.Run(ctx, taskID, t, factory, brk, log); err != nil {
		os.Exit(1)
	}
}

func runTexam(ctx context.Context, cfg *config.Config, log *logging.Logger) {
	taskID, t := loadTask(cfg)

	persist, err := persistence.NewMongoPort(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		fatal("connect persistence: %v", err)
	}
	orch := newOrchestrator(cfg, log)
	brk := broker.NewRedisPort(cfg.MessageBrokerHost, cfg.MessageBrokerPort, cfg.MessageBrokerPassword)
	defer brk.Close()

	execSecCtx := loadSecurityContext(cfg, log, cfg.ExecutorSecurityContextEnabled)

	if err := texam.Run(ctx, taskID, t, texam.Deps{
		Persist:    persist,
		Orch:       orch,
		Broker:     brk,
		Config:     cfg,
		ExecSecCtx: execSecCtx,
		Log:        log,
	}); err != nil {
		os.Exit(1)
	}
}

func newOrchestrator(cfg *config.Config, log *logging.Logger) *orchestrator.K8sPort {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		fatal("load in-cluster kubernetes config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		fatal("build kubernetes clientset: %v", err)
	}
	return orchestrator.NewK8sPort(clientset, cfg.Namespace, log)
}

func newFilerFactory(ctx context.Context, cfg *config.Config, log *logging.Logger) *filer.Factory {
	local := filer.NewLocalStrategy()
	http := filer.NewHTTPStrategy()

	var s3 *filer.S3Strategy
	if cfg.AWSAccessKeyID != "" {
		var err error
		s3, err = filer.NewS3Strategy(ctx, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSRegion, cfg.S3URL)
		if err != nil {
			log.Warnf("s3 filer strategy unavailable: %v", err)
		}
	}

	var azblob *filer.AzureBlobStrategy
	if account, key := os.Getenv("AZURE_STORAGE_ACCOUNT"), os.Getenv("AZURE_STORAGE_KEY"); account != "" {
		var err error
		azblob, err = filer.NewAzureBlobStrategy(account, key)
		if err != nil {
			log.Warnf("azure blob filer strategy unavailable: %v", err)
		}
	}

	gcs, err := filer.NewGCSStrategy(ctx)
	if err != nil {
		log.Warnf("gcs filer strategy unavailable: %v", err)
		gcs = nil
	}

	return filer.NewFactory(local, s3, http, azblob, gcs)
}

// loadTask reads the TesTask the API handler wrote to the Job's mounted
// ConfigMap (spec.md §4.10 "task.json").
func loadTask(cfg *config.Config) (string, tes.Task) {
	taskID := os.Getenv("POIESIS_TASK_ID")
	if taskID == "" {
		fatal("POIESIS_TASK_ID is not set")
	}
	mountPath := os.Getenv("POIESIS_TASK_CONFIG_PATH")
	if mountPath == "" {
		mountPath = "/etc/poiesis/task"
	}
	raw, err := os.ReadFile(filepath.Join(mountPath, "task.json"))
	if err != nil {
		fatal("read mounted task.json: %v", err)
	}
	var t tes.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		fatal("decode mounted task.json: %v", err)
	}
	return taskID, t
}

func loadSecurityContext(cfg *config.Config, log *logging.Logger, enabled bool) *securitycontext.Document {
	if !enabled {
		return nil
	}
	doc, err := securitycontext.Load(cfg.SecurityContextPath, cfg.SecurityContextConfigMapName)
	if err != nil {
		log.Warnf("security context disabled: %v", err)
		return nil
	}
	return doc
}

func fatal(format string, args ...interface{}) {
	logging.New("bootstrap", logging.LevelError).Errorf(format, args...)
	os.Exit(1)
}
