package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

var (
	cfgFile string
	verbose bool

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docparse",
	Short: "Extract structured data from invoices, receipts and other documents",
	Long: `docparse sends a document image (PDF first page, JPEG or PNG) to a local
vision model and prints the extracted fields as JSON. It can also process a
whole directory into a spreadsheet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := common.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			c.Log.Level = "debug"
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		// stdout carries command output
		logger = common.NewLoggerTo(os.Stderr, cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("DOCPARSE_CONFIG"), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// specFlags are shared by the commands that run extractions.
type specFlags struct {
	docType string
	fields  string
}

func (f *specFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.docType, "type", "t", string(constants.DefaultDocumentType),
		"document type: invoice, receipt, purchase_order, bill or auto")
	cmd.Flags().StringVar(&f.fields, "fields", "", `custom fields as JSON, e.g. '[{"field":"Tax ID","description":"VAT number"}]'`)
	cmd.MarkFlagsMutuallyExclusive("type", "fields")
}

func (f *specFlags) spec() (llm.ExtractionSpec, error) {
	fields, err := llm.ParseCustomFields(f.fields)
	if err != nil {
		return llm.ExtractionSpec{}, err
	}
	if len(fields) > 0 {
		return llm.ForCustomFields(fields)
	}
	return llm.ForDocumentType(constants.ParseDocumentType(f.docType)), nil
}
