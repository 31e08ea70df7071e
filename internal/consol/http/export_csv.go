package consolhttp

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/crestline-fin/crestline/internal/consol"
	"github.com/crestline-fin/crestline/internal/shared"
)

// csvStreamer batches rows through a buffered writer so large runs never
// hold a full export in memory. Comment lines bypass the csv encoder, so
// the encoder is flushed before each one to keep output ordered.
type csvStreamer struct {
	buf  *bufio.Writer
	csv  *csv.Writer
	rows int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, 32*1024)
	cw := csv.NewWriter(buf)
	cw.UseCRLF = true
	return &csvStreamer{buf: buf, csv: cw}
}

func (s *csvStreamer) writeComment(text string) error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	_, err := s.buf.WriteString("# " + text + "\r\n")
	return err
}

func (s *csvStreamer) writeRow(rec []string) error {
	if err := s.csv.Write(rec); err != nil {
		return err
	}
	s.rows++
	if s.rows%200 == 0 {
		s.csv.Flush()
		if err := s.csv.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (s *csvStreamer) flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	return s.buf.Flush()
}

// writeRunCSV streams one consolidation run as CSV: a comment header with
// run metadata, the consolidated totals, then per-company breakdowns and
// elimination entries.
func writeRunCSV(w io.Writer, run consol.Run) error {
	s := newCSVStreamer(w)

	header := []string{
		"Consolidation run " + run.ID.String(),
		"Organization " + run.OrganizationID.String(),
		"Name: " + run.RunName,
		"Period: " + shared.PeriodLabel(run.FiscalYear, run.FiscalPeriod),
		"Status: " + string(run.Status),
		"Balanced: " + strconv.FormatBool(run.Balanced),
	}
	if run.FailureReason != "" {
		header = append(header, "Failure: "+run.FailureReason)
	}
	for _, line := range header {
		if err := s.writeComment(line); err != nil {
			return err
		}
	}

	if err := s.writeRow([]string{"metric", "value"}); err != nil {
		return err
	}
	totals := [][2]string{
		{"total_assets", run.TotalAssets.String()},
		{"total_liabilities", run.TotalLiabilities.String()},
		{"total_equity", run.TotalEquity.String()},
		{"total_revenue", run.TotalRevenue.String()},
		{"total_expenses", run.TotalExpenses.String()},
		{"net_income", run.NetIncome.String()},
		{"elimination_count", strconv.Itoa(run.EliminationCount)},
		{"unmapped_account_count", strconv.Itoa(run.UnmappedAccountCount)},
	}
	for _, t := range totals {
		if err := s.writeRow([]string{t[0], t[1]}); err != nil {
			return err
		}
	}

	if len(run.CompanyBreakdowns) > 0 {
		if err := s.writeComment("Company breakdowns"); err != nil {
			return err
		}
		if err := s.writeRow([]string{
			"company_id", "total_assets", "total_liabilities", "total_equity",
			"total_revenue", "total_expenses", "net_income", "transaction_count",
		}); err != nil {
			return err
		}
		for _, b := range run.CompanyBreakdowns {
			if err := s.writeRow([]string{
				b.CompanyID.String(),
				b.TotalAssets.String(),
				b.TotalLiabilities.String(),
				b.TotalEquity.String(),
				b.TotalRevenue.String(),
				b.TotalExpenses.String(),
				b.NetIncome.String(),
				strconv.Itoa(b.TransactionCount),
			}); err != nil {
				return err
			}
		}
	}

	if len(run.Eliminations) > 0 {
		if err := s.writeComment("Intercompany eliminations"); err != nil {
			return err
		}
		if err := s.writeRow([]string{
			"type", "status", "amount", "from_company_id", "to_company_id", "note",
		}); err != nil {
			return err
		}
		for _, e := range run.Eliminations {
			if err := s.writeRow([]string{
				string(e.Kind),
				string(e.Status),
				e.Amount.String(),
				e.FromCompanyID.String(),
				e.ToCompanyID.String(),
				e.Note,
			}); err != nil {
				return err
			}
		}
	}

	return s.flush()
}
