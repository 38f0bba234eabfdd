package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/access"
	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
	_ "github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource/mssql"
	_ "github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource/postgres"
	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/audit"
	"github.com/queryguard-io/queryguard-engine/pkg/auth"
	"github.com/queryguard-io/queryguard-engine/pkg/config"
	"github.com/queryguard-io/queryguard-engine/pkg/engine"
	"github.com/queryguard-io/queryguard-engine/pkg/llm"
	"github.com/queryguard-io/queryguard-engine/pkg/logging"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
	"github.com/queryguard-io/queryguard-engine/pkg/translate"
	"github.com/queryguard-io/queryguard-engine/pkg/validate"
)

// Version is set at build time via ldflags
var Version = "dev"

const usageText = `Usage: queryguard-engine <command> [argument]

Commands:
  ask "<question>"   answer a natural-language question against the datasource
  check "<sql>"      run a raw SQL string through the security gates (no execution)
  policy <file>      validate and summarize a permission policy file

Configuration is read from config.yaml (override with QUERYGUARD_CONFIG)
plus environment variables. The acting principal comes from
QUERYGUARD_TOKEN (verified per the auth config) or QUERYGUARD_PRINCIPAL;
with neither set, the restrictive default profile applies.`

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, usageText)
		return 2
	}
	command, arg := os.Args[1], os.Args[2]

	configPath := os.Getenv("QUERYGUARD_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFrom(configPath, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Debug("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("driver", cfg.Datasource.Driver),
		zap.String("producer", cfg.Producer.Provider),
		zap.String("auth_mode", cfg.Auth.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "ask":
		return runAsk(ctx, cfg, logger, arg)
	case "check":
		return runCheck(cfg, logger, arg)
	case "policy":
		return runPolicy(logger, arg)
	default:
		fmt.Fprintln(os.Stderr, usageText)
		return 2
	}
}

func runAsk(ctx context.Context, cfg *config.Config, logger *zap.Logger, question string) int {
	eng, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		return 1
	}
	defer cleanup()

	result, err := eng.Ask(ctx, resolvePrincipal(cfg, logger), question)
	if err != nil {
		if errors.Is(err, apperrors.ErrSecurity) {
			fmt.Fprintf(os.Stderr, "rejected: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		}
		return 1
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func runCheck(cfg *config.Config, logger *zap.Logger, query string) int {
	auditor := audit.NewRecorder(logger)
	validator := validate.New(cfg.Security, nil, logger)

	res := validator.ValidateNative(query)
	engine.RecordDecision(auditor, resolvePrincipal(cfg, logger), res, query)
	if !res.OK {
		fmt.Printf("rejected: %s\n", res.Reason)
		return 1
	}
	fmt.Println("accepted")
	return 0
}

func runPolicy(logger *zap.Logger, path string) int {
	doc, err := access.LoadPolicy(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "policy: %v\n", err)
		return 1
	}
	guard := access.New(logger)
	if err := guard.ApplyPolicy(doc); err != nil {
		fmt.Fprintf(os.Stderr, "policy: %v\n", err)
		return 1
	}
	audit.NewRecorder(logger).PolicyReloaded(len(doc.Principals))
	fmt.Printf("policy ok: %d principals\n", len(doc.Principals))
	return 0
}

// buildEngine wires the full pipeline from configuration. The returned
// cleanup closes the datasource connections.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine.Engine, func(), error) {
	guard := access.New(logger)
	if p := cfg.Access.DefaultProfile(); p != nil {
		if err := guard.ApplyPolicy(&access.Document{Default: p}); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Access.PolicyFile != "" {
		if err := guard.LoadPolicyFile(cfg.Access.PolicyFile); err != nil {
			return nil, nil, err
		}
	}

	translator, err := translate.NewTranslator(translate.Dialect(cfg.Datasource.Driver))
	if err != nil {
		return nil, nil, err
	}

	producer, err := llm.NewProvider(cfg.Producer.LLMConfig(), logger)
	if err != nil {
		return nil, nil, err
	}

	adapterCfg := cfg.Datasource.AdapterConfig()
	executor, err := datasource.NewExecutor(ctx, cfg.Datasource.Driver, adapterCfg)
	if err != nil {
		return nil, nil, err
	}
	extractor, err := datasource.NewExtractor(ctx, cfg.Datasource.Driver, adapterCfg)
	if err != nil {
		_ = executor.Close()
		return nil, nil, err
	}
	cleanup := func() {
		_ = extractor.Close()
		_ = executor.Close()
	}

	eng, err := engine.New(engine.Config{
		Producer:   producer,
		Translator: translator,
		Executor:   executor,
		Schema:     schema.NewCachedProvider(extractor, cfg.Schema.CacheTTL()),
		Guard:      guard,
		Validator:  validate.New(cfg.Security, nil, logger),
		Auditor:    audit.NewRecorder(logger),
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

// resolvePrincipal picks the acting principal. A bearer token wins when
// present; a failed verification falls back to the restrictive default
// profile rather than aborting.
func resolvePrincipal(cfg *config.Config, logger *zap.Logger) string {
	if token := os.Getenv("QUERYGUARD_TOKEN"); token != "" {
		verifier, err := auth.NewVerifier(cfg.Auth.VerifierConfig())
		if err != nil {
			logger.Warn("auth verifier unavailable, using default profile", zap.Error(err))
			return "default"
		}
		defer verifier.Close()

		principal, err := verifier.ResolvePrincipal(token)
		if err != nil {
			logger.Warn("token rejected, using default profile", zap.Error(err))
			return "default"
		}
		return principal.ID
	}
	if p := os.Getenv("QUERYGUARD_PRINCIPAL"); p != "" {
		return p
	}
	return "default"
}
