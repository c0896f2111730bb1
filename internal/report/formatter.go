package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/srdiag/srdiag-mcp/internal/central"
)

// Package report renders the orchestrator's terminal envelopes into
// human-readable markdown. The formatter is pure: it never mutates the
// envelope and has no side effects. The sink (sink.go) writes the full
// report to a temp file so the transport payload stays small.
//
// Recognized envelope shapes, each rendered differently:
//   - health envelopes (storage_health, compaction_health, import_health)
//   - storage amplification (ratio heat-map, per-table top-5)
//   - diagnosis (summary, issue lists, recommendations)
//   - plan (step table)
//   - step_completed (one-line progress)
//   - HTML report (path note, content written elsewhere)

// healthKeys are envelope keys rendered as health sections.
var healthKeys = []string{"storage_health", "compaction_health", "import_health"}

var healthTitles = map[string]string{
	"storage_health":    "存储健康度",
	"compaction_health": "Compaction 健康度",
	"import_health":     "导入健康度",
}

// Format renders the full markdown report for a terminal envelope.
func Format(tool string, env map[string]interface{}) string {
	var b strings.Builder
	header := fmt.Sprintf("# %s 诊断报告\n\n", tool)
	b.WriteString(header)

	for _, key := range healthKeys {
		if h, ok := asMap(env[key]); ok {
			writeHealth(&b, healthTitles[key], h)
		}
	}

	if amp, ok := asMap(env["storage_amplification"]); ok {
		writeAmplification(&b, amp)
	}

	if diag, ok := asMap(env["diagnosis_results"]); ok {
		writeDiagnosis(&b, diag)
	}

	if html, ok := asMap(env["html_report"]); ok {
		if path, ok := asString(html["output_path"]); ok {
			fmt.Fprintf(&b, "HTML 报告已写入: %s\n\n", path)
		}
	}
	if path, ok := asString(env["output_path"]); ok && env["html_content"] != nil {
		fmt.Fprintf(&b, "HTML 报告已写入: %s\n\n", path)
	}

	if b.Len() == len(header) {
		// Nothing recognized; dump top-level scalar fields so the report
		// is never empty.
		writeFallback(&b, env)
	}

	return b.String()
}

// healthEmoji maps a health level to its indicator.
func healthEmoji(level string) string {
	switch strings.ToUpper(level) {
	case "EXCELLENT", "GOOD":
		return "🟢"
	case "FAIR":
		return "🟡"
	case "POOR":
		return "🔴"
	}
	return "⚪"
}

func writeHealth(b *strings.Builder, title string, h map[string]interface{}) {
	level, _ := asString(h["level"])
	fmt.Fprintf(b, "## %s %s\n\n", healthEmoji(level), title)
	fmt.Fprintf(b, "- 等级: %s\n", level)
	if score, ok := asFloat(h["score"]); ok {
		fmt.Fprintf(b, "- 评分: %.0f\n", score)
	}
	if status, ok := asString(h["status"]); ok {
		fmt.Fprintf(b, "- 状态: %s\n", status)
	}
	b.WriteString("\n")
}

// ratioEmoji maps a storage amplification ratio to its heat indicator.
func ratioEmoji(ratio float64) string {
	switch {
	case ratio > 2.0:
		return "🔴"
	case ratio > 1.5:
		return "🟡"
	}
	return "🟢"
}

func writeAmplification(b *strings.Builder, amp map[string]interface{}) {
	b.WriteString("## 存储放大分析\n\n")
	if ratio, ok := asFloat(amp["overall_ratio"]); ok {
		fmt.Fprintf(b, "%s 整体放大比: %.2f\n", ratioEmoji(ratio), ratio)
	}
	if logical, ok := asFloat(amp["logical_bytes"]); ok {
		fmt.Fprintf(b, "- 逻辑大小: %s\n", formatBytes(logical))
	}
	if physical, ok := asFloat(amp["physical_bytes"]); ok {
		fmt.Fprintf(b, "- 物理大小: %s\n", formatBytes(physical))
	}

	tables, _ := asSlice(amp["tables"])
	if len(tables) > 0 {
		b.WriteString("\n| 表 | 放大比 | 逻辑大小 | 物理大小 |\n|---|---|---|---|\n")
		for i, t := range tables {
			if i >= 5 {
				break
			}
			row, ok := asMap(t)
			if !ok {
				continue
			}
			name, _ := asString(row["table"])
			ratio, _ := asFloat(row["ratio"])
			logical, _ := asFloat(row["logical_bytes"])
			physical, _ := asFloat(row["physical_bytes"])
			fmt.Fprintf(b, "| %s | %s %.2f | %s | %s |\n",
				name, ratioEmoji(ratio), ratio, formatBytes(logical), formatBytes(physical))
		}
	}
	b.WriteString("\n")
}

func writeDiagnosis(b *strings.Builder, diag map[string]interface{}) {
	b.WriteString("## 诊断结果\n\n")
	if summary, ok := asString(diag["summary"]); ok {
		fmt.Fprintf(b, "%s\n\n", summary)
	}

	writeIssueList(b, "🔴 严重问题", diag["critical_issues"])
	writeIssueList(b, "🟡 警告", diag["warnings"])
	writeIssueList(b, "问题", diag["issues"])

	if recs, _ := asSlice(diag["recommendations"]); len(recs) > 0 {
		b.WriteString("### 建议\n\n")
		for i, rec := range recs {
			if i >= 3 {
				break
			}
			fmt.Fprintf(b, "%d. %s\n", i+1, stringify(rec))
		}
		b.WriteString("\n")
	}
}

func writeIssueList(b *strings.Builder, title string, v interface{}) {
	items, _ := asSlice(v)
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", stringify(item))
	}
	b.WriteString("\n")
}

func writeFallback(b *strings.Builder, env map[string]interface{}) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch env[k].(type) {
		case string, float64, bool, int:
			fmt.Fprintf(b, "- %s: %v\n", k, env[k])
		}
	}
	b.WriteString("\n")
}

// FormatPlan renders an execution plan as a step table plus the
// confirmation prompt.
func FormatPlan(tool string, plan *central.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 执行计划\n\n", tool)
	if plan.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", plan.Description)
	}

	b.WriteString("| 步骤 | 名称 |\n|---|---|\n")
	for _, step := range plan.Steps {
		fmt.Fprintf(&b, "| %d | %s |\n", step.Step, step.Name)
	}
	b.WriteString("\n")

	if plan.EstimatedTime != "" {
		fmt.Fprintf(&b, "预计耗时: %s\n\n", plan.EstimatedTime)
	}
	fmt.Fprintf(&b, "确认执行请携带 `confirmed: true` 重新调用 %s。\n", tool)
	return b.String()
}

// FormatStepCompleted renders the one-line progress summary for a
// step_completed directive.
func FormatStepCompleted(d *central.Directive) string {
	step := d.Step
	name := ""
	summary := ""
	if d.CompletedStep != nil {
		if d.CompletedStep.Step > 0 {
			step = d.CompletedStep.Step
		}
		name = d.CompletedStep.Name
		summary = d.CompletedStep.Summary
	}

	total := "?"
	if d.TotalSteps > 0 {
		total = fmt.Sprintf("%d", d.TotalSteps)
	}

	line := fmt.Sprintf("⏳ 进度 %d/%s: %s", step, total, name)
	if summary != "" {
		line += " | " + summary
	}
	line += "\n\n再次调用该工具继续下一步。"
	return line
}

// FormatSelection surfaces a needs_selection prompt.
func FormatSelection(d *central.Directive) string {
	var b strings.Builder
	if msg, ok := asString(d.Extra["message"]); ok {
		b.WriteString(msg)
		b.WriteString("\n")
	} else if prompt, ok := asString(d.Extra["prompt"]); ok {
		b.WriteString(prompt)
		b.WriteString("\n")
	} else {
		b.WriteString("需要选择后继续。\n")
	}

	if options, _ := asSlice(d.Extra["options"]); len(options) > 0 {
		b.WriteString("\n")
		for i, opt := range options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, stringify(opt))
		}
	}
	return b.String()
}

// Brief builds the short summary returned to the caller alongside the
// full report path.
func Brief(tool string, env map[string]interface{}, reportPath string) string {
	var b strings.Builder
	if status, _ := asString(env["status"]); status == "error" {
		fmt.Fprintf(&b, "❌ %s 分析失败\n\n", tool)
		for _, k := range []string{"error", "message"} {
			if msg, ok := asString(env[k]); ok {
				fmt.Fprintf(&b, "%s\n", msg)
				break
			}
		}
		if reportPath != "" {
			fmt.Fprintf(&b, "\n完整报告: %s\n", reportPath)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "✅ %s 分析完成\n\n", tool)

	if diag, ok := asMap(env["diagnosis_results"]); ok {
		if summary, ok := asString(diag["summary"]); ok {
			fmt.Fprintf(&b, "%s\n", summary)
		}
		if total, ok := asFloat(diag["total_issues"]); ok {
			fmt.Fprintf(&b, "发现问题: %.0f\n", total)
		}
	}

	for _, key := range healthKeys {
		if h, ok := asMap(env[key]); ok {
			level, _ := asString(h["level"])
			fmt.Fprintf(&b, "%s %s: %s\n", healthEmoji(level), healthTitles[key], level)
		}
	}

	if reportPath != "" {
		fmt.Fprintf(&b, "\n完整报告: %s\n", reportPath)
	}
	return b.String()
}

// formatBytes renders a byte count in a human scale.
func formatBytes(n float64) string {
	const unit = 1024.0
	switch {
	case n >= unit*unit*unit*unit:
		return fmt.Sprintf("%.2f TB", n/(unit*unit*unit*unit))
	case n >= unit*unit*unit:
		return fmt.Sprintf("%.2f GB", n/(unit*unit*unit))
	case n >= unit*unit:
		return fmt.Sprintf("%.2f MB", n/(unit*unit))
	case n >= unit:
		return fmt.Sprintf("%.2f KB", n/unit)
	}
	return fmt.Sprintf("%.0f B", n)
}

// stringify renders list items that may be strings or structured
// {description|message|...} objects.
func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if m, ok := asMap(v); ok {
		for _, k := range []string{"description", "message", "recommendation", "issue", "name"} {
			if s, ok := asString(m[k]); ok {
				return s
			}
		}
	}
	return fmt.Sprintf("%v", v)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok && m != nil
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
