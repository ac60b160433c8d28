package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/ctapi/internal/auth"
	"github.com/adamscao/ctapi/internal/config"
	"github.com/adamscao/ctapi/internal/db"
	"github.com/adamscao/ctapi/internal/db/repository"
	"github.com/adamscao/ctapi/internal/ingest"
	"github.com/adamscao/ctapi/internal/models"
	"github.com/adamscao/ctapi/internal/query"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "ctadmin",
	Short: "CT query API administration tool",
	Long:  "Administrative tool for managing CT query API keys, certificate records, and audit logs",
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  createKey,
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys",
	RunE:  listKeys,
}

var keyRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API key",
	RunE:  revokeKey,
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage certificate records",
}

var certImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import JSON-lines certificate records",
	Args:  cobra.ExactArgs(1),
	RunE:  importCerts,
}

var certCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count stored certificate records",
	RunE:  countCerts,
}

var certExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Refresh the expired flag of every record",
	RunE:  expireCerts,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit logs",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE:  listAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit log entries older than a retention period",
	RunE:  pruneAudit,
}

var (
	keyName     string
	keyID       int64
	auditKey    string
	auditAction string
	auditLimit  int
	retention   time.Duration
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/ctapi/config.yaml", "Config file path")

	// Key flags
	keyCreateCmd.Flags().StringVarP(&keyName, "name", "n", "", "Key name (required)")
	keyCreateCmd.MarkFlagRequired("name")
	keyRevokeCmd.Flags().Int64Var(&keyID, "id", 0, "Key ID (required)")
	keyRevokeCmd.MarkFlagRequired("id")

	// Audit flags
	auditListCmd.Flags().StringVar(&auditKey, "key", "", "Filter by key name")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to show")
	auditPruneCmd.Flags().DurationVar(&retention, "older-than", 90*24*time.Hour, "Retention period")

	// Add commands
	keyCmd.AddCommand(keyCreateCmd, keyListCmd, keyRevokeCmd)
	certCmd.AddCommand(certImportCmd, certCountCmd, certExpireCmd)
	auditCmd.AddCommand(auditListCmd, auditPruneCmd)
	rootCmd.AddCommand(keyCmd, certCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB(ctx context.Context) error {
	// Load configuration
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to database
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(ctx, database); err != nil {
		database.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func audit(ctx context.Context, action, details string) {
	log := &models.AuditLog{
		Action:  action,
		KeyName: "ctadmin",
		Success: true,
		Details: details,
	}
	if err := repository.NewAuditRepository(database.DB).Create(ctx, log); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", err)
	}
}

func createKey(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	token, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate api key: %w", err)
	}

	keyRepo := repository.NewAPIKeyRepository(database.DB)
	key := &models.APIKey{
		Name:    keyName,
		KeyHash: auth.HashToken(token),
		Enabled: true,
	}
	if err := keyRepo.Create(ctx, key); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	audit(ctx, models.ActionKeyCreate, fmt.Sprintf(`{"id":%d}`, key.ID))

	fmt.Printf("\nAPI key created successfully!\n")
	fmt.Printf("Key ID: %d\n", key.ID)
	fmt.Printf("Name: %s\n", key.Name)
	fmt.Printf("\nAPI Key: %s\n", token)
	fmt.Printf("\nStore this key now. Only its hash is kept and it cannot be shown again.\n")

	return nil
}

func listKeys(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	keys, err := repository.NewAPIKeyRepository(database.DB).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list api keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		return nil
	}

	fmt.Printf("\nTotal keys: %d\n\n", len(keys))
	fmt.Printf("%-5s %-24s %-10s %-20s %s\n", "ID", "Name", "Enabled", "Created", "Last Used")
	fmt.Println(strings.Repeat("-", 80))

	for _, key := range keys {
		enabledStr := "No"
		if key.Enabled {
			enabledStr = "Yes"
		}
		lastUsed := "never"
		if key.LastUsedAt != nil {
			lastUsed = key.LastUsedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-5d %-24s %-10s %-20s %s\n",
			key.ID,
			key.Name,
			enabledStr,
			key.CreatedAt.Format("2006-01-02 15:04:05"),
			lastUsed,
		)
	}

	return nil
}

func revokeKey(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	if err := repository.NewAPIKeyRepository(database.DB).Revoke(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	audit(ctx, models.ActionKeyRevoke, fmt.Sprintf(`{"id":%d}`, keyID))

	fmt.Printf("API key %d revoked\n", keyID)
	return nil
}

func importCerts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	certRepo := repository.NewCertRepository(database.DB, 0)
	stats, err := ingest.ReadJSONL(ctx, certRepo, f, time.Now())
	if stats != nil {
		for _, rejected := range stats.Rejected {
			fmt.Fprintf(os.Stderr, "Skipped %v\n", rejected)
		}
		audit(ctx, models.ActionCertImport, fmt.Sprintf(`{"imported":%d,"duplicates":%d,"rejected":%d}`,
			stats.Imported, stats.Duplicates, len(stats.Rejected)))
		fmt.Printf("\nImported: %d\n", stats.Imported)
		fmt.Printf("Duplicates: %d\n", stats.Duplicates)
		fmt.Printf("Rejected: %d\n", len(stats.Rejected))
	}
	if err != nil {
		return fmt.Errorf("import aborted: %w", err)
	}

	return nil
}

func countCerts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	certRepo := repository.NewCertRepository(database.DB, 0)
	total, err := certRepo.Count(ctx, query.Filter{Field: query.FieldAll})
	if err != nil {
		return err
	}
	active, err := certRepo.Count(ctx, query.Filter{Field: query.FieldAll, ExcludeExpired: true})
	if err != nil {
		return err
	}
	corp, err := certRepo.Count(ctx, query.Filter{Field: query.FieldCorporate, Value: cfg.Corp.DomainSuffix})
	if err != nil {
		return err
	}

	fmt.Printf("Total records: %d\n", total)
	fmt.Printf("Unexpired: %d\n", active)
	fmt.Printf("Under %s: %d\n", cfg.Corp.DomainSuffix, corp)
	return nil
}

func expireCerts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	changed, err := repository.NewCertRepository(database.DB, 0).RefreshExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Updated %d records\n", changed)
	return nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	logs, err := repository.NewAuditRepository(database.DB).List(ctx, auditKey, auditAction, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if len(logs) == 0 {
		fmt.Println("No audit logs found")
		return nil
	}

	fmt.Printf("%-20s %-14s %-16s %-16s %-8s %s\n", "Time", "Action", "Key", "Client IP", "Success", "Details")
	fmt.Println(strings.Repeat("-", 100))

	for _, log := range logs {
		details := log.Details
		if log.ErrorMsg != "" {
			details = log.ErrorMsg
		}
		fmt.Printf("%-20s %-14s %-16s %-16s %-8t %s\n",
			log.Timestamp.Format("2006-01-02 15:04:05"),
			log.Action,
			log.KeyName,
			log.ClientIP,
			log.Success,
			details,
		)
	}

	return nil
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	deleted, err := repository.NewAuditRepository(database.DB).DeleteOld(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d audit log entries\n", deleted)
	return nil
}
