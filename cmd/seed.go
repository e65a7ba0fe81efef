package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/remindly/followup-gateway/internal/config"
	"github.com/remindly/followup-gateway/internal/db"
	"github.com/remindly/followup-gateway/internal/model"
	"github.com/remindly/followup-gateway/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo mailboxes...")

		if err := seedMailboxes(sqlDB); err != nil {
			return err
		}
		if err := seedTrackedEmails(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedMailboxes inserts deterministic demo mailboxes (idempotent).
func seedMailboxes(dbx *sqlx.DB) error {
	mailboxes := []model.Mailbox{
		{
			Address:      "sales@acme.example",
			DisplayName:  "Acme Sales",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Address:      "support@foobar.example",
			DisplayName:  "Foobar Support",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Address:      "outreach@beta.example",
			DisplayName:  "Beta Outreach",
			APIKey:       "33333333333333333333333333333333",
			Status:       "active",
			RateLimitRPS: intptr(5),
		},
		{
			Address:      "parked@suspended.example",
			DisplayName:  "Suspended Inc",
			APIKey:       "44444444444444444444444444444444",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO mailboxes
    (id, address, display_name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    address        = VALUES(address),
    display_name   = VALUES(display_name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, mb := range mailboxes {
		if _, err := tx.Exec(q, util.New(), mb.Address, mb.DisplayName, mb.APIKey, mb.Status, mb.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert mailbox %q: %w", mb.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mailboxes: %w", err)
	}
	return nil
}

// seedTrackedEmails plants a few pending emails on the first demo mailbox so
// the scheduler has something to work on. Fixed ids make reruns idempotent.
func seedTrackedEmails(dbx *sqlx.DB) error {
	var mailboxID string
	err := dbx.Get(&mailboxID, `SELECT id FROM mailboxes WHERE api_key = ? LIMIT 1`,
		"11111111111111111111111111111111")
	if err != nil {
		return fmt.Errorf("lookup demo mailbox: %w", err)
	}

	type demo struct {
		id, subject, recipient, conversation string
		sentAgo                              time.Duration
	}
	emails := []demo{
		{"01SEEDMA1LDEM0TRACKED00001", "Quote for Q3 rollout", "alice@customer.example", "conv-demo-1", 80 * time.Hour},
		{"01SEEDMA1LDEM0TRACKED00002", "Partnership intro", "bob@partner.example", "conv-demo-2", 26 * time.Hour},
		{"01SEEDMA1LDEM0TRACKED00003", "Invoice 2025-114", "carol@client.example", "conv-demo-3", time.Hour},
	}

	const q = `
INSERT INTO tracked_emails
    (id, mailbox_id, provider_message_id, conversation_id, internet_message_id,
     subject, recipients, status, followup_count, sent_at, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, NOW(), NOW())
ON DUPLICATE KEY UPDATE
    subject    = VALUES(subject),
    updated_at = NOW()
`
	now := time.Now()
	for _, e := range emails {
		_, err := dbx.Exec(q,
			e.id, mailboxID, "prov-"+e.id, e.conversation,
			"<"+e.id+"@remindly.example>", e.subject, e.recipient,
			now.Add(-e.sentAgo),
		)
		if err != nil {
			return fmt.Errorf("insert tracked email %q: %w", e.subject, err)
		}
	}
	return nil
}

func intptr(i int) *int { return &i }
