package backtest

import (
	"bytes"
	"fmt"
	"html"

	"backtester/internal/export"
)

// HTMLReport renders a one-page summary; images are relative file names shown inline.
func HTMLReport(title string, sum Summary, images []string, zipName string) []byte {
	var b bytes.Buffer
	t := html.EscapeString(title)
	fmt.Fprintf(&b, "<!doctype html><html><head><meta charset='utf-8'><title>%s</title>", t)
	b.WriteString("<style>body{font-family:Inter,system-ui,sans-serif;padding:16px;background:#0b0f17;color:#e6edf3}table{border-collapse:collapse}td,th{border:1px solid #1f2837;padding:6px 8px}</style>")
	b.WriteString("</head><body>")
	fmt.Fprintf(&b, "<h2>%s</h2><table>", t)
	row := func(k, v string) { fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", k, v) }
	row("Initial Portfolio", export.Money(sum.InitialValue))
	row("Final Portfolio", export.Money(sum.FinalValue))
	row("Total Return (%)", export.Money(sum.TotalReturnPct))
	row("Buy &amp; Hold Return (%)", export.Money(sum.BuyHoldPct))
	row("Total Trades", fmt.Sprint(sum.Trades))
	row("Max Drawdown (%)", export.Money(sum.MaxDD))
	row("Win Rate (%)", export.Money(sum.WinRate*100))
	row("Profit Factor", export.Money(sum.ProfitFact))
	row("Fees", export.Money(sum.Fees))
	b.WriteString("</table>")
	if sum.BeatBuyHold() {
		b.WriteString("<p>Strategy outperformed buy &amp; hold.</p>")
	} else {
		b.WriteString("<p>Strategy underperformed buy &amp; hold.</p>")
	}
	for _, img := range images {
		fmt.Fprintf(&b, "<p><img src='%s' alt='%s'/></p>", html.EscapeString(img), html.EscapeString(img))
	}
	if zipName != "" {
		fmt.Fprintf(&b, "<p><a href='%s'>Download ZIP</a></p>", html.EscapeString(zipName))
	}
	b.WriteString("</body></html>")
	return b.Bytes()
}
