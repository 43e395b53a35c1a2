package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/affordindia/affordindia-sub004/config"
	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/dashboard"
	"github.com/affordindia/affordindia-sub004/internal/gateway"
	"github.com/affordindia/affordindia-sub004/internal/orderapi"
	"github.com/affordindia/affordindia-sub004/logging"
)

func main() {
	cfg, err := config.GetDashboardConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.GetFileLogger("dashboard.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	client := orderapi.NewClient(cfg.APIAddress, cfg.RequestTimeout)
	if err = client.Login(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Errorw("admin login failed", "address", cfg.APIAddress, "error", err)
		fmt.Fprintf(os.Stderr, "login failed: %s\n", apperr.Message(err))
		os.Exit(1)
	}

	var p *tea.Program
	gw := gateway.New(client,
		gateway.WithLogger(logger),
		gateway.WithNotify(func() { p.Send(dashboard.RefreshMsg{}) }),
	)
	p = tea.NewProgram(dashboard.New(ctx, gw), tea.WithContext(ctx))

	if _, err = p.Run(); err != nil {
		logger.Errorw("dashboard stopped", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
