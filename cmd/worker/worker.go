package worker

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/remindly/followup-gateway/internal/config"
	"github.com/remindly/followup-gateway/internal/db"
	"github.com/remindly/followup-gateway/internal/followup"
	"github.com/remindly/followup-gateway/internal/logger"
	"github.com/remindly/followup-gateway/internal/provider"
	"github.com/remindly/followup-gateway/internal/repository"
	"github.com/remindly/followup-gateway/internal/schedule"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(notificationsCmd)
	cmd.AddCommand(schedulerCmd)
	cmd.AddCommand(senderCmd)
	cmd.AddCommand(leasekeeperCmd)

	return cmd
}

// core bundles the dependencies every worker shares.
type core struct {
	cfg  config.Config
	dbx  *sqlx.DB
	orch *followup.Orchestrator
}

func (c *core) close() {
	if c.dbx != nil {
		_ = c.dbx.Close()
	}
}

// buildCore loads config, connects MySQL and assembles the orchestrator.
func buildCore(cmd *cobra.Command) (*core, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}

	client := provider.NewHTTPClient(
		cfg.Provider.BaseURL,
		cfg.Provider.NotificationURL,
		cfg.Provider.ClientState,
		cfg.Provider.TimeoutMs,
		cfg.Provider.Breaker.FailThreshold,
		cfg.Provider.Breaker.OpenForMs,
	)

	hours, err := schedule.Parse(cfg.WorkingHours)
	if err != nil {
		_ = dbx.Close()
		return nil, err
	}

	orch := followup.New(
		repository.NewTrackedEmailsRepository(dbx),
		repository.NewFollowupsRepository(dbx),
		repository.NewBouncesRepository(dbx),
		client,
		hours,
		cfg.Followups,
	)

	return &core{cfg: cfg, dbx: dbx, orch: orch}, nil
}

func leaseDurations(cfg config.Config) (time.Duration, time.Duration) {
	return time.Duration(cfg.Provider.LeaseMaxHours) * time.Hour, cfg.Provider.RenewalThreshold
}
