package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/licitatech/match-cli/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load companies or opportunities from a JSON file",
}

var importCompaniesCmd = &cobra.Command{
	Use:   "companies <file>",
	Short: "Import company profiles from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var companies []model.CompanyProfile
		if err := readJSONFile(args[0], &companies); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		for i := range companies {
			if companies[i].ID == "" {
				companies[i].ID = uuid.NewString()
			}
			if err := st.UpsertCompany(ctx, companies[i]); err != nil {
				return eris.Wrapf(err, "import: company %s", companies[i].Name)
			}
		}

		zap.L().Info("companies imported", zap.Int("count", len(companies)))
		return nil
	},
}

var importOpportunitiesCmd = &cobra.Command{
	Use:   "opportunities <file>",
	Short: "Import opportunities from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var opportunities []model.Opportunity
		if err := readJSONFile(args[0], &opportunities); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		for i := range opportunities {
			if opportunities[i].ID == "" {
				opportunities[i].ID = uuid.NewString()
			}
			if err := st.UpsertOpportunity(ctx, opportunities[i]); err != nil {
				return eris.Wrapf(err, "import: opportunity %s", opportunities[i].ExternalID)
			}
		}

		zap.L().Info("opportunities imported", zap.Int("count", len(opportunities)))
		return nil
	},
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "import: read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "import: parse %s", path)
	}
	return nil
}

func init() {
	importCmd.AddCommand(importCompaniesCmd, importOpportunitiesCmd)
	rootCmd.AddCommand(importCmd)
}
