package report

import (
	"strings"
	"testing"

	"github.com/srdiag/srdiag-mcp/internal/central"
)

func TestFormatHealthSections(t *testing.T) {
	env := map[string]interface{}{
		"storage_health": map[string]interface{}{
			"level": "EXCELLENT",
			"score": float64(95),
		},
		"import_health": map[string]interface{}{
			"level":  "POOR",
			"status": "3 个导入任务失败",
		},
	}

	out := Format("analyze_storage", env)
	if !strings.HasPrefix(out, "# analyze_storage 诊断报告\n") {
		t.Errorf("header missing: %q", out)
	}
	if !strings.Contains(out, "## 🟢 存储健康度") {
		t.Errorf("excellent health not rendered green: %q", out)
	}
	if !strings.Contains(out, "## 🔴 导入健康度") {
		t.Errorf("poor health not rendered red: %q", out)
	}
	if !strings.Contains(out, "- 评分: 95") {
		t.Errorf("score missing: %q", out)
	}
	if !strings.Contains(out, "- 状态: 3 个导入任务失败") {
		t.Errorf("status line missing: %q", out)
	}
}

func TestFormatAmplificationTable(t *testing.T) {
	tables := make([]interface{}, 0, 7)
	for i := 0; i < 7; i++ {
		tables = append(tables, map[string]interface{}{
			"table":          "db.t",
			"ratio":          float64(3.0),
			"logical_bytes":  float64(1024 * 1024),
			"physical_bytes": float64(3 * 1024 * 1024),
		})
	}
	env := map[string]interface{}{
		"storage_amplification": map[string]interface{}{
			"overall_ratio": 1.8,
			"tables":        tables,
		},
	}

	out := Format("analyze_storage", env)
	if !strings.Contains(out, "🟡 整体放大比: 1.80") {
		t.Errorf("overall ratio missing or wrong heat: %q", out)
	}
	if !strings.Contains(out, "| 表 | 放大比 | 逻辑大小 | 物理大小 |") {
		t.Errorf("table header missing: %q", out)
	}
	if got := strings.Count(out, "| db.t |"); got != 5 {
		t.Errorf("table rows = %d, want top 5", got)
	}
	if !strings.Contains(out, "🔴 3.00") {
		t.Errorf("high ratio not rendered red: %q", out)
	}
	if !strings.Contains(out, "1.00 MB") || !strings.Contains(out, "3.00 MB") {
		t.Errorf("byte sizes not humanized: %q", out)
	}
}

func TestFormatDiagnosis(t *testing.T) {
	env := map[string]interface{}{
		"diagnosis_results": map[string]interface{}{
			"summary":         "整体正常",
			"critical_issues": []interface{}{"磁盘接近写满"},
			"warnings":        []interface{}{map[string]interface{}{"description": "副本不均衡"}},
			"recommendations": []interface{}{"r1", "r2", "r3", "r4"},
		},
	}

	out := Format("analyze_storage", env)
	if !strings.Contains(out, "整体正常") {
		t.Errorf("summary missing: %q", out)
	}
	if !strings.Contains(out, "### 🔴 严重问题") || !strings.Contains(out, "- 磁盘接近写满") {
		t.Errorf("critical issues missing: %q", out)
	}
	if !strings.Contains(out, "- 副本不均衡") {
		t.Errorf("structured warning not stringified: %q", out)
	}
	if strings.Contains(out, "r4") {
		t.Errorf("recommendations not capped at 3: %q", out)
	}
}

func TestFormatFallbackOnUnrecognizedEnvelope(t *testing.T) {
	out := Format("analyze_storage", map[string]interface{}{
		"status": "success",
		"note":   "nothing structured here",
		"nested": map[string]interface{}{"skipped": true},
	})
	if !strings.Contains(out, "- note: nothing structured here") {
		t.Errorf("fallback scalars missing: %q", out)
	}
	if strings.Contains(out, "skipped") {
		t.Errorf("fallback should only dump scalars: %q", out)
	}
}

func TestFormatPlan(t *testing.T) {
	plan := &central.Plan{
		Description: "三步分析",
		Steps: []central.PlanStep{
			{Step: 1, Name: "采集表结构"},
			{Step: 2, Name: "扫描分区"},
		},
		EstimatedTime: "2 分钟",
	}

	out := FormatPlan("analyze_storage", plan)
	if !strings.Contains(out, "| 步骤 | 名称 |") {
		t.Errorf("step table header missing: %q", out)
	}
	if !strings.Contains(out, "| 1 | 采集表结构 |") || !strings.Contains(out, "| 2 | 扫描分区 |") {
		t.Errorf("step rows missing: %q", out)
	}
	if !strings.Contains(out, "预计耗时: 2 分钟") {
		t.Errorf("estimated time missing: %q", out)
	}
	if !strings.Contains(out, "确认执行请携带 `confirmed: true` 重新调用 analyze_storage。") {
		t.Errorf("confirmation prompt missing: %q", out)
	}
}

func TestFormatStepCompleted(t *testing.T) {
	d := &central.Directive{
		Status:        central.StatusStepCompleted,
		TotalSteps:    4,
		CompletedStep: &central.CompletedStep{Step: 2, Name: "分区扫描", Summary: "扫描 120 个分区"},
	}

	out := FormatStepCompleted(d)
	if !strings.HasPrefix(out, "⏳ 进度 2/4: 分区扫描 | 扫描 120 个分区") {
		t.Errorf("progress line = %q", out)
	}
	if !strings.Contains(out, "再次调用该工具继续下一步。") {
		t.Errorf("continuation hint missing: %q", out)
	}

	// Unknown total renders as "?".
	d.TotalSteps = 0
	if out := FormatStepCompleted(d); !strings.HasPrefix(out, "⏳ 进度 2/?: ") {
		t.Errorf("unknown total = %q", out)
	}
}

func TestFormatSelection(t *testing.T) {
	d := &central.Directive{
		Status: central.StatusNeedsSelection,
		Extra: map[string]interface{}{
			"message": "选择要分析的数据库",
			"options": []interface{}{"tpch", "ssb"},
		},
	}

	out := FormatSelection(d)
	if !strings.Contains(out, "选择要分析的数据库") {
		t.Errorf("message missing: %q", out)
	}
	if !strings.Contains(out, "1. tpch") || !strings.Contains(out, "2. ssb") {
		t.Errorf("options missing: %q", out)
	}
}

func TestBriefSuccess(t *testing.T) {
	env := map[string]interface{}{
		"status": "success",
		"diagnosis_results": map[string]interface{}{
			"summary":      "集群整体健康",
			"total_issues": float64(2),
		},
		"storage_health": map[string]interface{}{"level": "GOOD"},
	}

	out := Brief("analyze_storage", env, "/tmp/analyze_storage_x.md")
	if !strings.HasPrefix(out, "✅ analyze_storage 分析完成") {
		t.Errorf("brief = %q", out)
	}
	if !strings.Contains(out, "集群整体健康") || !strings.Contains(out, "发现问题: 2") {
		t.Errorf("diagnosis summary missing: %q", out)
	}
	if !strings.Contains(out, "🟢 存储健康度: GOOD") {
		t.Errorf("health line missing: %q", out)
	}
	if !strings.Contains(out, "完整报告: /tmp/analyze_storage_x.md") {
		t.Errorf("report path missing: %q", out)
	}
}

func TestBriefError(t *testing.T) {
	env := map[string]interface{}{
		"status": "error",
		"error":  "数据库连接失败",
	}

	out := Brief("analyze_storage", env, "")
	if !strings.HasPrefix(out, "❌ analyze_storage 分析失败") {
		t.Errorf("brief = %q", out)
	}
	if !strings.Contains(out, "数据库连接失败") {
		t.Errorf("error detail missing: %q", out)
	}
	if strings.Contains(out, "完整报告") {
		t.Errorf("no report path expected: %q", out)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.00 TB"},
	}
	for _, c := range cases {
		if got := formatBytes(c.in); got != c.want {
			t.Errorf("formatBytes(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
