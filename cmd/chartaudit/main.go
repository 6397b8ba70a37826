// Package main provides the chartaudit CLI: scan one dashboard chart for a
// category and date range, cross-check it against the backing store, and
// write the comparison workbook.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chartaudit/internal/audit"
	"chartaudit/internal/browser"
	"chartaudit/internal/config"
	"chartaudit/internal/notify"
	"chartaudit/internal/reconcile"
	"chartaudit/internal/refstore"
	"chartaudit/internal/report"
	"chartaudit/internal/series"
)

var (
	category      string
	startDate     string
	endDate       string
	entity        string
	density       int
	settleMS      int
	chartSel      string
	tooltipSel    string
	outputPath    string
	categoryFile  string
	showBrowser   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chartaudit",
		Short: "Cross-check dashboard chart values against the backing store",
		Long: `chartaudit sweeps hover probes across a monitoring dashboard's chart,
collects the tooltip values, fetches the authoritative rows for the same
period from the datastore, and writes an Excel comparison report.`,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&category, "category", "c", "", "Chart category: Voltage, Current, Energy or Demand")
	rootCmd.Flags().StringVar(&startDate, "start", "", "Range start (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&endDate, "end", "", "Range end (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&entity, "entity", "", "Metering point / entity filter")
	rootCmd.Flags().IntVar(&density, "density", 0, "Horizontal probe positions across the chart (0 = default)")
	rootCmd.Flags().IntVar(&settleMS, "settle", 0, "Hover settle time per probe in milliseconds (0 = default)")
	rootCmd.Flags().StringVar(&chartSel, "chart-selector", "div.chart-plot", "Selector of the chart plotting area")
	rootCmd.Flags().StringVar(&tooltipSel, "tooltip-selector", "div.chart-tooltip", "Selector of the hover tooltip")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Report path (default: <outdir>/<category>_comparison_<ts>.xlsx)")
	rootCmd.Flags().StringVar(&categoryFile, "categories", "", "YAML file overriding the category table")
	rootCmd.Flags().BoolVar(&showBrowser, "show-browser", false, "Run Chrome with a visible window")
	cobra.CheckErr(rootCmd.MarkFlagRequired("category"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	table, err := config.Categories(categoryFile)
	if err != nil {
		return err
	}
	cat, err := config.Lookup(table, category)
	if err != nil {
		return err
	}
	if startDate == "" || endDate == "" {
		return fmt.Errorf("both --start and --end are required")
	}

	ctx := context.Background()

	sess, err := browser.New(ctx, browser.Options{Headless: !showBrowser})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, cfg.DashboardURL); err != nil {
		return err
	}
	if cfg.Username != "" {
		captchaFile := filepath.Join(cfg.OutputDir, "captcha.png")
		if err := sess.Login(ctx, cfg.Username, cfg.Password, captchaFile, promptCaptcha); err != nil {
			return err
		}
	}
	if err := sess.SelectTab(ctx, category); err != nil {
		return err
	}
	if err := sess.EnterDateRange(ctx, startDate, endDate); err != nil {
		return err
	}
	rect, err := sess.ElementRect(ctx, chartSel)
	if err != nil {
		return err
	}

	db, err := refstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher, err := notify.New(cfg.MQTTBroker, cfg.MQTTTopic, "chartaudit")
	if err != nil {
		log.Printf("mqtt disabled: %v", err)
		publisher = nil
	}
	defer publisher.Close()

	out := outputPath
	if out == "" {
		name := fmt.Sprintf("%s_comparison_%s.xlsx", strings.ToLower(category), time.Now().Format("20060102_150405"))
		out = filepath.Join(cfg.OutputDir, name)
	}

	runner := &audit.Runner{
		Session:    sess,
		Rect:       rect,
		Category:   cat,
		Name:       series.Category(category),
		Density:    density,
		Settle:     time.Duration(settleMS) * time.Millisecond,
		TooltipSel: tooltipSel,
		Fetch: func(ctx context.Context) (reconcile.Reference, error) {
			return refstore.Fetch(ctx, db, refstore.Query{
				Table:        cat.Table,
				KeyColumn:    cat.KeyColumn,
				Start:        startDate,
				End:          endDate,
				Entity:       entity,
				EntityColumn: entityColumn(entity),
			})
		},
		Write: func(chart series.Dataset, ref reconcile.Reference, rep reconcile.Report) error {
			return report.WriteComparison(out, chart, ref, rep)
		},
		Notifier:   publisher,
		ReportPath: out,
	}

	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("report written to %s\n", out)
	fmt.Printf("rows=%d mismatches=%d missing_in_chart=%d missing_in_reference=%d\n",
		len(rep.Rows), rep.Mismatches, rep.MissingInChart, rep.MissingInReference)
	if len(rep.UnmappedChartFields) > 0 {
		fmt.Printf("unmapped chart fields: %s\n", strings.Join(rep.UnmappedChartFields, ", "))
	}
	return nil
}

func entityColumn(entity string) string {
	if entity == "" {
		return ""
	}
	return "MeterID"
}

// promptCaptcha asks the operator to read the saved captcha image and type
// the code. Recognition is deliberately out of scope here.
func promptCaptcha(imagePath string) (string, error) {
	fmt.Printf("captcha saved to %s, enter code: ", imagePath)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
