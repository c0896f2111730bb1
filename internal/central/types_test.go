package central

import (
	"encoding/json"
	"testing"
)

func TestDirectiveUnmarshalCapturesExtras(t *testing.T) {
	raw := `{
		"status": "success",
		"phase": "desc_storage_volumes",
		"requires_sql_execution": true,
		"sql": "SHOW BACKENDS",
		"diagnosis_results": {"summary": "all good"},
		"storage_health": {"status": "EXCELLENT"},
		"html_content": "<html></html>"
	}`

	var d Directive
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if d.Status != StatusSuccess || d.Phase != "desc_storage_volumes" {
		t.Errorf("typed fields not decoded: %+v", d)
	}
	if !d.RequiresSQLExecution || d.SQL != "SHOW BACKENDS" {
		t.Errorf("dispatch fields not decoded: %+v", d)
	}

	for _, key := range []string{"diagnosis_results", "storage_health", "html_content"} {
		if _, ok := d.Extra[key]; !ok {
			t.Errorf("unknown key %q not captured in Extra", key)
		}
	}
	for _, key := range []string{"status", "phase", "sql", "requires_sql_execution"} {
		if _, ok := d.Extra[key]; ok {
			t.Errorf("typed key %q leaked into Extra", key)
		}
	}
}

func TestDirectiveEnvelopeMergesTypedAndExtra(t *testing.T) {
	var d Directive
	raw := `{"status":"success","phase_name":"final","diagnosis_results":{"summary":"s"}}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	env := d.Envelope()
	if env["status"] != "success" {
		t.Errorf("envelope missing typed field: %v", env)
	}
	if env["phase_name"] != "final" {
		t.Errorf("envelope missing phase_name: %v", env)
	}
	if _, ok := env["diagnosis_results"]; !ok {
		t.Errorf("envelope missing extra field: %v", env)
	}
}

func TestDirectiveIsTerminal(t *testing.T) {
	cases := []struct {
		status   string
		terminal bool
	}{
		{StatusSuccess, true},
		{StatusError, true},
		{StatusNotApplicable, true},
		{"some_future_status", true},
		{StatusNeedsMoreQueries, false},
		{StatusStepCompleted, false},
		{StatusNeedsSelection, false},
		{StatusPlan, false},
	}
	for _, c := range cases {
		d := Directive{Status: c.status}
		if got := d.IsTerminal(); got != c.terminal {
			t.Errorf("IsTerminal(%q) = %v, want %v", c.status, got, c.terminal)
		}
	}
}

func TestQueryIsMeta(t *testing.T) {
	if (Query{Type: "sql", SQL: "SELECT 1"}).IsMeta() {
		t.Errorf("sql query flagged as meta")
	}
	if !(Query{Type: "meta", RequiresProfileFetch: true}).IsMeta() {
		t.Errorf("meta query not recognized")
	}
}
