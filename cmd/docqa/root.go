package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/app"
	"github.com/jwulff/docqa/internal/auth"
	"github.com/jwulff/docqa/internal/config"
	"github.com/jwulff/docqa/internal/logging"
	"github.com/jwulff/docqa/internal/player"
)

// env is the wiring shared by every command.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	tokens *auth.Store
	client *api.Client
}

func (e *env) Close() {
	_ = e.logger.Sync()
	if err := e.tokens.Close(); err != nil {
		e.logger.Debug("close token store", zap.Error(err))
	}
}

// setup loads configuration and opens the token store. The TUI logs to the
// configured file; other commands log warnings to stderr.
func setup(cmd *cobra.Command, cfgPath string, tui bool) (*env, error) {
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if tui {
		logger, err = logging.NewLogger(cfg.Log.Debug, cfg.Log.Path)
	} else {
		logger, err = logging.NewStderrLogger(cfg.Log.Debug)
	}
	if err != nil {
		return nil, err
	}

	tokens, err := auth.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	client, err := api.New(cfg.Server.BaseURL,
		api.WithTokenSource(tokens),
		api.WithTimeout(cfg.Server.Timeout),
		api.WithLogger(logger),
	)
	if err != nil {
		_ = tokens.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, tokens: tokens, client: client}, nil
}

func rootCMD() *cobra.Command {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "docqa",
		Short:         "Ask questions about your documents, audio and video",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, cfgPath, true)
			if err != nil {
				return err
			}
			defer e.Close()
			return runTUI(e)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/docqa/config.yaml)")
	root.PersistentFlags().String("server", "", "backend API base URL")
	root.PersistentFlags().Bool("debug", false, "verbose logging")

	root.AddCommand(
		loginCMD(&cfgPath),
		registerCMD(&cfgPath),
		logoutCMD(&cfgPath),
		listCMD(&cfgPath),
		uploadCMD(&cfgPath),
		deleteCMD(&cfgPath),
		downloadCMD(&cfgPath),
		summaryCMD(&cfgPath),
		timestampsCMD(&cfgPath),
		askCMD(&cfgPath),
		mcpCMD(&cfgPath),
	)
	return root
}

func runTUI(e *env) error {
	e.logger.Info("starting docqa", zap.String("version", version), zap.String("server", e.cfg.Server.BaseURL))

	m := app.New(app.Options{
		Backend:      e.client,
		Tokens:       e.tokens,
		Launch:       mpvLauncher(e.cfg.Player, e.logger),
		PollInterval: e.cfg.Poll.Interval,
		ServerURL:    e.cfg.Server.BaseURL,
		Logger:       e.logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	unsubscribe := e.tokens.Subscribe(func(authenticated bool) {
		p.Send(app.AuthChangedMsg{Authenticated: authenticated})
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func mpvLauncher(cfg config.PlayerConfig, logger *zap.Logger) app.Launcher {
	return func(ctx context.Context, doc api.Document, url, token string) (player.Element, error) {
		mpv, err := player.Launch(ctx, player.LaunchOptions{
			Path:      cfg.MPVPath,
			SocketDir: cfg.SocketDir,
			URL:       url,
			Token:     token,
			Video:     doc.Type == api.KindVideo,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return mpv, nil
	}
}
