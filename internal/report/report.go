// Package report 把一轮探测结果渲染成状态看板文本。
package report

import (
	"strings"
	"time"

	"servicemonitor/internal/probe"
)

// 状态图标。报告放在代码块里，等宽字体保证对齐。
const (
	glyphOnline  = "🟢"
	glyphOffline = "🔴"
	glyphDevice  = "🖥️"
	glyphDate    = "📅"
)

// Render 渲染状态看板。纯函数：相同时间戳和结果序列产出逐字节一致的文本。
// 端点顺序沿用传入顺序，收尾前去掉多余空行。
func Render(now time.Time, results []probe.Result) string {
	var b strings.Builder

	b.WriteString("```")
	b.WriteString(glyphDate)
	b.WriteString(" ")
	b.WriteString(now.Format("2006-01-02 15:04"))
	b.WriteString("\n\n")

	for _, r := range results {
		if r.Online {
			b.WriteString(glyphOnline)
		} else {
			b.WriteString(glyphOffline)
		}
		b.WriteString(" ")
		b.WriteString(r.Server.Name)
		b.WriteString("\n")
		b.WriteString(glyphDevice)
		b.WriteString(" ")
		b.WriteString(r.Server.Address)
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "```"
}
