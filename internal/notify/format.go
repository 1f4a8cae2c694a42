package notify

import (
	"fmt"
	"strings"

	"stock-tracker-alerts/internal/types"
	"stock-tracker-alerts/lib/helpers"
	"stock-tracker-alerts/lib/translation"
)

const (
	plainRule    = "=================================================="
	plainDivider = "--------------------------------------------------"
	mdRule       = "══════════════════════════════"
	mdDivider    = "──────────────────────────────"
)

// Subject is the title shared by every channel, e.g. "Stock Alert: 2 Targets Met".
func Subject(n int) string {
	return translation.TranslatePlural("Stock Alert: %d Target Met", "Stock Alert: %d Targets Met", n, n)
}

// advice tells the reader what the crossed target suggests doing.
func advice(p types.AlertPayload) string {
	switch p.TargetType {
	case types.TargetBuy:
		return translation.Translate("Price dropped below target! Consider buying.")
	case types.TargetDCA:
		return translation.Translate("Price dropped below target! Consider adding to your position.")
	case types.TargetSell:
		return translation.Translate("Price rose above target! Consider selling.")
	case types.TargetTrim:
		if p.TrimPercentage.Valid {
			return translation.Translate("Price rose above target! Consider trimming %s%% of position.", p.TrimPercentage.Decimal.String())
		}
		return translation.Translate("Price rose above target! Consider trimming your position.")
	}
	return ""
}

func displayName(p types.AlertPayload) string {
	if p.Name == "" || strings.EqualFold(p.Name, p.Symbol) {
		return p.Symbol
	}
	return fmt.Sprintf("%s (%s)", p.Symbol, p.Name)
}

// FormatPlain renders the batch as a plain-text email.
func FormatPlain(batch []types.AlertPayload) (string, string) {
	var b strings.Builder
	b.WriteString(translation.Translate("Stock Tracker Alert") + "\n")
	b.WriteString(plainRule + "\n\n")

	for _, p := range batch {
		fmt.Fprintf(&b, "🔔 %s: %s\n", translation.Translate("ALERT"), displayName(p))
		fmt.Fprintf(&b, "%s: %s\n", translation.Translate("Target Type"), p.TargetType)
		fmt.Fprintf(&b, "%s: $%s\n", translation.Translate("Current Price"), helpers.FormatPriceUS(p.CurrentPrice, false))
		fmt.Fprintf(&b, "%s: $%s\n", translation.Translate("Target Price"), helpers.FormatPriceUS(p.TargetPrice, false))
		fmt.Fprintf(&b, "%s: %s\n", translation.Translate("Difference"), helpers.FormatPercent(p.DifferencePercent, false))
		if p.Volume.IsPositive() {
			fmt.Fprintf(&b, "%s: %s\n", translation.Translate("Volume"), helpers.FormatVolume(p.Volume))
		}
		b.WriteString(advice(p) + "\n")
		if p.AlertNote != "" {
			fmt.Fprintf(&b, "%s: %s\n", translation.Translate("Note"), p.AlertNote)
		}
		b.WriteString("\n" + plainDivider + "\n\n")
	}

	b.WriteString(translation.Translate("This is an automated message from your Stock Tracker.") + "\n")
	return Subject(len(batch)), b.String()
}

// FormatMarkdown renders the batch as Telegram MarkdownV2. Alerts are
// separated by blank lines so long messages can be split between them.
func FormatMarkdown(batch []types.AlertPayload) string {
	sections := make([]string, 0, len(batch)+2)
	sections = append(sections, fmt.Sprintf("🔔 *%s*\n%s", helpers.EscapeMarkdownV2(Subject(len(batch))), mdRule))

	for i, p := range batch {
		var b strings.Builder
		if i > 0 {
			b.WriteString(mdDivider + "\n")
		}
		fmt.Fprintf(&b, "*%d\\. %s*\n", i+1, helpers.EscapeMarkdownV2(displayName(p)))
		fmt.Fprintf(&b, "*%s:* %s\n", helpers.EscapeMarkdownV2(translation.Translate("Target Type")), helpers.EscapeMarkdownV2(string(p.TargetType)))
		fmt.Fprintf(&b, "%s: *$%s*\n", helpers.EscapeMarkdownV2(translation.Translate("Current Price")), helpers.FormatPriceUS(p.CurrentPrice, true))
		fmt.Fprintf(&b, "%s: *$%s*\n", helpers.EscapeMarkdownV2(translation.Translate("Target Price")), helpers.FormatPriceUS(p.TargetPrice, true))
		fmt.Fprintf(&b, "%s: %s\n", helpers.EscapeMarkdownV2(translation.Translate("Difference")), helpers.FormatPercent(p.DifferencePercent, true))
		if p.Volume.IsPositive() {
			fmt.Fprintf(&b, "%s: %s\n", helpers.EscapeMarkdownV2(translation.Translate("Volume")), helpers.EscapeMarkdownV2(helpers.FormatVolume(p.Volume)))
		}
		b.WriteString(helpers.EscapeMarkdownV2(advice(p)))
		if p.AlertNote != "" {
			fmt.Fprintf(&b, "\n📝 _%s_", helpers.EscapeMarkdownV2(p.AlertNote))
		}
		sections = append(sections, b.String())
	}

	sections = append(sections, "_"+helpers.EscapeMarkdownV2(translation.Translate("📱 Automated message from Stock Tracker"))+"_")
	return strings.Join(sections, "\n\n")
}
