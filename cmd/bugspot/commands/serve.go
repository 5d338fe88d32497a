package commands

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bugspot/bugspot/internal/core/config"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/core/state"
	"github.com/bugspot/bugspot/internal/duplicates"
	"github.com/bugspot/bugspot/internal/integrations/blobstore"
	"github.com/bugspot/bugspot/internal/integrations/captcha"
	"github.com/bugspot/bugspot/internal/integrations/discord"
	"github.com/bugspot/bugspot/internal/integrations/github"
	"github.com/bugspot/bugspot/internal/integrations/llm"
	"github.com/bugspot/bugspot/internal/integrations/mail"
	"github.com/bugspot/bugspot/internal/lifecycle"
	"github.com/bugspot/bugspot/internal/server"
	"github.com/bugspot/bugspot/internal/steps"
	"github.com/bugspot/bugspot/internal/storage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
}

// app holds everything the server needs and releases it on Close.
type app struct {
	store   *storage.Store
	deps    *pipeline.Dependencies
	media   *blobstore.Store
	mailer  *mail.Mailer
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[serve] Warning: close failed: %v", err)
		}
	}
}

// initDependencies wires storage, integrations and the triage dependencies.
// Optional integrations that are not configured are logged and left out.
func initDependencies(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(cfg.Database.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{store: store, closers: []func() error{store.Close}}

	deps := &pipeline.Dependencies{Store: store}

	client, err := llm.New(ctx, llm.Options{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
	if err != nil {
		log.Printf("[serve] Warning: LLM disabled: %v", err)
	} else {
		if c, ok := client.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
		client = llm.WithTimeout(llm.WithRetry(client, llm.DefaultRetryConfig(cfg.LLM.Retries)), cfg.LLM.Timeout)
		deps.LLM = client
		deps.Duplicates = duplicates.NewDetector(client, duplicates.Options{
			MaxResults: cfg.Limits.MaxDuplicates,
			ScanLimit:  cfg.Limits.OpenIssueScan,
		})
		if verbose {
			fmt.Printf("✓ Initialized %s LLM client\n", cfg.LLM.Provider)
		}
	}

	deps.Trackers = github.NewResolver(github.ResolverOptions{
		AppID:      cfg.GitHub.AppID,
		PrivateKey: cfg.GitHubPrivateKey(),
		Token:      cfg.GitHub.Token,
		Timeout:    cfg.GitHub.APITimeout,
	})

	switch cfg.Database.PendingBackend {
	case "sql":
		deps.Pending = state.NewSQLStore(store.DB(), cfg.Limits.PendingTTL)
	default:
		deps.Pending = state.NewMemoryStore(cfg.Limits.PendingTTL)
	}

	if a.media, err = newMediaStore(cfg); err != nil {
		log.Printf("[serve] Warning: media uploads disabled: %v", err)
	} else {
		deps.Media = a.media
	}

	deps.Captcha = captcha.NewVerifier(captcha.Options{
		Secret:    cfg.Captcha.Secret,
		VerifyURL: cfg.Captcha.VerifyURL,
		Bypass:    cfg.Captcha.Bypass,
		Timeout:   cfg.Captcha.Timeout,
	})
	if cfg.Captcha.Bypass {
		log.Printf("[serve] Warning: captcha bypass is enabled")
	}

	deps.Notifier = discord.NewNotifier(cfg.GitHub.DiscordTimeout)

	if a.mailer, err = newMailer(cfg); err != nil {
		log.Printf("[serve] Warning: reporter emails disabled: %v", err)
	}

	a.deps = deps
	return a, nil
}

func newMediaStore(cfg *config.Config) (*blobstore.Store, error) {
	return blobstore.New(blobstore.Options{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		Domain:          cfg.Storage.Domain,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		KeyPrefix:       cfg.Storage.KeyPrefix,
	})
}

func newMailer(cfg *config.Config) (*mail.Mailer, error) {
	return mail.New(mail.Options{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
}

// objectDeleter and reporterMailer keep nil pointers out of the interfaces.
func objectDeleter(s *blobstore.Store) lifecycle.ObjectDeleter {
	if s == nil {
		return nil
	}
	return s
}

func reporterMailer(m *mail.Mailer) lifecycle.Mailer {
	if m == nil {
		return nil
	}
	return m
}

func runServer(ctx context.Context, cfg *config.Config) error {
	a, err := initDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	triage, err := steps.NewTriage(cfg, a.deps)
	if err != nil {
		return err
	}

	proxies, err := server.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	go state.Janitor(ctx, a.deps.Pending, time.Minute, log.Printf)

	opts := server.Options{
		Triage:         triage,
		Events:         lifecycle.NewCleaner(a.store, objectDeleter(a.media), reporterMailer(a.mailer)),
		WebhookSecret:  cfg.GitHub.WebhookSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: proxies,
		IPHeader:       cfg.Server.IPHeader,
		AIRequests:     cfg.Server.AIRequests,
		AIWindow:       cfg.Server.AIWindow,
		UploadRequests: cfg.Server.UploadRequests,
		UploadWindow:   cfg.Server.UploadWindow,
	}
	if a.media != nil {
		opts.Uploads = lifecycle.NewUploader(a.media, a.store, cfg.Storage.OrphanDelay)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🐞 Bugspot listening on http://localhost%s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Println("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
