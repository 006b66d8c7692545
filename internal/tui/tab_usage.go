package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/tui/components"
	"github.com/theirongolddev/cchat/internal/tui/theme"
	"github.com/theirongolddev/cchat/internal/usage"

	"github.com/charmbracelet/lipgloss"
)

const usageChartDays = 14

func (a App) renderUsageTab(cw int) string {
	t := theme.Active
	now := time.Now()

	current := a.rt.Usage.Current()
	if current.Period == "" {
		current.Period = now.Format(model.PeriodLayout)
	}
	budget := a.rt.Budget()
	all := a.rt.Usage.Summarize(usage.Filter{})

	var b strings.Builder

	// Row 1: metric cards
	requestsDelta := ""
	if all.Requests > current.Requests {
		requestsDelta = cli.FormatNumber(int64(all.Requests)) + " all time"
	}
	cards := []components.Metric{
		{Label: "Spend " + periodLabel(current.Period), Value: cli.FormatCost(current.Cost), Delta: cli.FormatCost(all.Cost) + " all time"},
		{Label: "Projected", Value: cli.FormatCost(a.rt.Usage.Estimate()), Delta: fmt.Sprintf("%d days left", budget.DaysRemaining)},
		{Label: "Requests", Value: cli.FormatNumber(int64(current.Requests)), Delta: requestsDelta},
		{Label: "Tokens", Value: cli.FormatTokens(current.TotalTokens()),
			Delta: cli.FormatTokens(current.PromptTokens) + " in · " + cli.FormatTokens(current.CompletionTokens) + " out"},
	}
	if a.isCompactLayout() {
		b.WriteString(components.MetricCardRow(cards[:2], cw))
		b.WriteString("\n")
		b.WriteString(components.MetricCardRow(cards[2:], cw))
	} else {
		b.WriteString(components.MetricCardRow(cards, cw))
	}
	b.WriteString("\n")

	// Row 2: budget
	inner := components.CardInnerWidth(cw)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	var budgetBody string
	if budget.CustomBudget != nil && *budget.CustomBudget > 0 {
		barW := inner - 14 - 6
		budgetBody = components.BudgetBar("This month", budget.BudgetUsedPercent/100, 12, barW) + "\n" +
			mutedStyle.Render(fmt.Sprintf("%s of %s · projected %s",
				cli.FormatCost(budget.CurrentSpend),
				cli.FormatCost(*budget.CustomBudget),
				cli.FormatCost(budget.ProjectedMonthly)))
	} else {
		budgetBody = mutedStyle.Render("No monthly budget set. Add [budget] monthly_usd to config.toml.")
	}
	b.WriteString(components.ContentCard("Budget", budgetBody, cw))
	b.WriteString("\n")

	// Row 3: daily spend chart + model breakdown
	since := now.AddDate(0, 0, -(usageChartDays - 1))
	recent := a.rt.Usage.Summarize(usage.LastDays(usageChartDays, now))
	days := usage.DailySeries(recent, since, now)

	dayRows := make([]components.Bar, 0, len(days))
	for _, d := range days {
		label := d.Date
		if day, err := time.ParseInLocation(model.DateLayout, d.Date, now.Location()); err == nil {
			label = day.Format("Mon Jan 02")
		}
		dayRows = append(dayRows, components.Bar{Label: label, Value: d.Cost, Text: cli.FormatCost(d.Cost)})
	}

	models := all.Models()
	modelRows := make([]components.Bar, 0, len(models))
	for _, m := range models {
		modelRows = append(modelRows, components.Bar{
			Label: shortModel(m.Model),
			Value: m.Cost,
			Text:  fmt.Sprintf("%s · %d req", cli.FormatCost(m.Cost), m.Requests),
		})
	}
	chartTitle := fmt.Sprintf("Daily Spend [%dd]", usageChartDays)

	if a.isCompactLayout() {
		b.WriteString(components.ContentCard(chartTitle, components.HBars(dayRows, t.Accent, inner), cw))
		b.WriteString("\n")
		b.WriteString(components.ContentCard("By Model", barsOrEmpty(modelRows, t.Blue, inner), cw))
		return b.String()
	}

	widths := components.LayoutRow(cw, 2)
	left := components.ContentCard(chartTitle,
		components.HBars(dayRows, t.Accent, components.CardInnerWidth(widths[0])), widths[0])
	right := components.ContentCard("By Model",
		barsOrEmpty(modelRows, t.Blue, components.CardInnerWidth(widths[1])), widths[1])
	b.WriteString(components.CardRow([]string{left, right}))

	return b.String()
}

func barsOrEmpty(rows []components.Bar, color lipgloss.Color, width int) string {
	if len(rows) == 0 {
		t := theme.Active
		return lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface).Render("No requests yet")
	}
	return components.HBars(rows, color, width)
}

// periodLabel turns "2006-01" into "Jan 2006".
func periodLabel(period string) string {
	p, err := time.Parse(model.PeriodLayout, period)
	if err != nil {
		return period
	}
	return p.Format("Jan 2006")
}
