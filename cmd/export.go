package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all matches to an XLSX report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		matches, err := st.ListAllMatches(ctx)
		if err != nil {
			return err
		}

		f := xlsx.NewFile()
		sheet, err := f.AddSheet("matches")
		if err != nil {
			return err
		}

		header := sheet.AddRow()
		for _, h := range []string{
			"opportunity_id", "company_id", "score", "match_type",
			"validated_by_llm", "validator_model", "justification", "created_at",
		} {
			header.AddCell().Value = h
		}

		for _, m := range matches {
			row := sheet.AddRow()
			row.AddCell().Value = m.OpportunityID
			row.AddCell().Value = m.CompanyID
			row.AddCell().Value = fmt.Sprintf("%.4f", m.Score)
			row.AddCell().Value = string(m.MatchType)
			row.AddCell().Value = fmt.Sprintf("%t", m.ValidatedByLLM)
			row.AddCell().Value = m.ValidatorModel
			row.AddCell().Value = m.Justification
			row.AddCell().Value = m.CreatedAt.Format(time.RFC3339)
		}

		if err := f.Save(exportOut); err != nil {
			return err
		}
		zap.L().Info("matches exported", zap.Int("count", len(matches)), zap.String("file", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "matches.xlsx", "output file path")
	rootCmd.AddCommand(exportCmd)
}
