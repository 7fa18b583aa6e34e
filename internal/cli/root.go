// Package cli implements imadmin, the operator tool for the chat database.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"memories-social/internal/config"
	"memories-social/internal/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	// openDB is replaced in tests.
	openDB func(cfg config.Config) (*gorm.DB, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for imadmin.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{openDB: openConfiguredDB})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imadmin",
		Short: "Inspect and maintain the chat database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (defaults to ./config/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewShowConversationCommand(opts))
	cmd.AddCommand(NewListParticipantsCommand(opts))
	cmd.AddCommand(NewFindDuplicateDirectCommand(opts))

	return cmd
}

func openConfiguredDB(cfg config.Config) (*gorm.DB, error) {
	return storage.InitDB(cfg.Database, cfg.LogLevel)
}

// open loads the configuration and connects to its database.
func (o *RootOptions) open() (*gorm.DB, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return o.openDB(cfg)
}

// emit writes v as JSON, or calls text when the text format is selected.
func (o *RootOptions) emit(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
