package helpers

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Special = []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

func EscapeMarkdownV2(text string) string {
	for _, char := range markdownV2Special {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS renders a price with US thousand separators. Large prices lose
// their cents, tiny ones keep more digits.
func FormatPriceUS(price decimal.Decimal, escapeMarkdown bool) string {
	decimals := int32(2)
	abs := price.Abs()
	if abs.GreaterThanOrEqual(decimal.NewFromInt(100000)) {
		decimals = 0
	} else if abs.LessThan(decimal.NewFromFloat(0.00001)) && !abs.IsZero() {
		decimals = 8
	} else if abs.LessThan(decimal.NewFromInt(1)) && !abs.IsZero() {
		decimals = 6
	}

	formatted := groupThousands(price.StringFixed(decimals))
	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatPercent renders a signed percentage with two decimals, e.g. "-1.00%".
func FormatPercent(p decimal.Decimal, escapeMarkdown bool) string {
	formatted := p.StringFixed(2) + "%"
	if p.IsPositive() {
		formatted = "+" + formatted
	}
	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

func FormatVolume(v decimal.Decimal) string {
	return humanize.Comma(v.IntPart())
}

func FormatDate(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04 MST")
}

// FormatAgo renders a timestamp relative to now, "3 hours ago".
func FormatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func groupThousands(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, hasFrac := strings.Cut(fixed, ".")

	var n int64
	for _, c := range intPart {
		n = n*10 + int64(c-'0')
	}

	p := message.NewPrinter(language.English)
	out := sign + p.Sprintf("%d", n)
	if hasFrac {
		out += "." + frac
	}
	return out
}
