package loop

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/executor/promexec"
)

// Profile enrichment: a meta query in the batch tells the loop to fetch
// full query profiles for the interesting rows of profile_list, and
// optionally the schemas of the tables those profiles touch. The
// orchestrator gets enriched results without ever seeing the raw list.

// applyMeta runs the enrichment pipelines requested by meta queries.
func (r *Runner) applyMeta(ctx context.Context, meta []central.Query, results map[string]interface{}) {
	for _, m := range meta {
		if m.RequiresProfileFetch {
			r.enrichProfiles(ctx, m, results)
		}
	}
}

// systemQueryPatterns mark profile_list statements that are never worth
// profiling: session chatter and our own diagnostic traffic.
var systemQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*SHOW\b`),
	regexp.MustCompile(`(?i)^\s*SET\b`),
	regexp.MustCompile(`(?i)^\s*USE\b`),
	regexp.MustCompile(`(?i)^\s*SELECT\s+last_query_id\s*\(`),
	regexp.MustCompile(`(?i)^\s*SELECT\s+get_query_profile\s*\(`),
	regexp.MustCompile(`(?i)^\s*SELECT\s+@@`),
	regexp.MustCompile(`(?i)\binformation_schema\.`),
}

var (
	selectPattern = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	fromPattern   = regexp.MustCompile(`(?i)\bFROM\b`)
)

// isSystemQuery reports whether a statement is excluded from profile
// fetching. SELECTs without a FROM are constant expressions.
func isSystemQuery(stmt string) bool {
	for _, p := range systemQueryPatterns {
		if p.MatchString(stmt) {
			return true
		}
	}
	if selectPattern.MatchString(stmt) && !fromPattern.MatchString(stmt) {
		return true
	}
	return false
}

// profileDurationPattern parses the profile list's Time column.
var profileDurationPattern = regexp.MustCompile(`^([\d.]+)(ms|s|m)$`)

// parseProfileDuration parses durations like "230ms", "2s", "1m".
func parseProfileDuration(s string) (time.Duration, bool) {
	m := profileDurationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "ms":
		return time.Duration(n * float64(time.Millisecond)), true
	case "s":
		return time.Duration(n * float64(time.Second)), true
	case "m":
		return time.Duration(n * float64(time.Minute)), true
	}
	return 0, false
}

// enrichProfiles filters profile_list down to user queries inside the
// time window above the duration floor, fetches each one's profile, and
// stores the bundle under query_profiles.
func (r *Runner) enrichProfiles(ctx context.Context, m central.Query, results map[string]interface{}) {
	rows := rowsOf(results["profile_list"])
	if len(rows) == 0 {
		return
	}

	now := time.Now()
	cutoff := promexec.ParseTimeBound(m.TimeRange, now.Add(-time.Hour), now)

	minDuration := 100 * time.Millisecond
	if m.MinDurationMS > 0 {
		minDuration = time.Duration(m.MinDurationMS) * time.Millisecond
	}

	profiles := make(map[string]interface{})
	for _, row := range rows {
		stmt := stringOf(row["Statement"])
		if stmt == "" || isSystemQuery(stmt) {
			continue
		}

		if st := stringOf(row["StartTime"]); st != "" {
			if t, err := time.ParseInLocation("2006-01-02 15:04:05", st, time.Local); err == nil && t.Before(cutoff) {
				continue
			}
		}

		if dur, ok := parseProfileDuration(stringOf(row["Time"])); ok && dur < minDuration {
			continue
		}

		id := stringOf(row["QueryId"])
		if id == "" {
			id = stringOf(row["QueryID"])
		}
		if id == "" {
			continue
		}

		profile := r.sql.ExecuteSingle(ctx, fmt.Sprintf("SELECT get_query_profile('%s')", id))
		profiles[id] = map[string]interface{}{
			"profile":   profileText(profile),
			"startTime": row["StartTime"],
			"duration":  row["Time"],
			"state":     row["State"],
			"statement": stmt,
		}
	}

	if len(profiles) > 0 {
		results["query_profiles"] = profiles
	}
	if m.RequiresTableSchemaFetch {
		r.enrichTableSchemas(ctx, profiles, results)
	}
}

var (
	// Profile text names scanned tables as "- Table: db.tbl" lines.
	profileTablePattern = regexp.MustCompile(`-\s*Table:\s*([\w$]+\.[\w$]+)`)

	// Compound db.table references in FROM/JOIN clauses. Bare table
	// names are skipped: without a database qualifier SHOW CREATE TABLE
	// would resolve against whatever database the session happens to be in.
	fromJoinPattern = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+`?([\\w$]+)`?\\.`?([\\w$]+)`?")
)

// enrichTableSchemas collects table names out of the fetched profiles,
// runs SHOW CREATE TABLE for each, and annotates the data cache setting
// and object kind.
func (r *Runner) enrichTableSchemas(ctx context.Context, profiles map[string]interface{}, results map[string]interface{}) {
	tables := make(map[string]bool)
	for _, p := range profiles {
		entry, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		text := stringOf(entry["profile"])
		stmt := stringOf(entry["statement"])

		for _, m := range profileTablePattern.FindAllStringSubmatch(text, -1) {
			tables[m[1]] = true
		}
		for _, m := range fromJoinPattern.FindAllStringSubmatch(stmt+"\n"+text, -1) {
			tables[m[1]+"."+m[2]] = true
		}
	}
	if len(tables) == 0 {
		return
	}

	schemas := make(map[string]interface{}, len(tables))
	for name := range tables {
		schemas[name] = describeSchema(r.sql.ExecuteSingle(ctx, "SHOW CREATE TABLE "+name))
	}
	results["table_schemas"] = schemas
}

// describeSchema extracts the DDL, the data_cache.enable property, and
// whether the object is a view from a SHOW CREATE TABLE result.
func describeSchema(v interface{}) map[string]interface{} {
	rows, ok := v.([]map[string]interface{})
	if !ok || len(rows) == 0 {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
		return map[string]interface{}{"error": "empty SHOW CREATE TABLE result"}
	}
	row := rows[0]

	ddl := ""
	objectType := "TABLE"
	if s := stringOf(row["Create Table"]); s != "" {
		ddl = s
	}
	if s := stringOf(row["Create View"]); s != "" {
		ddl = s
		objectType = "VIEW"
	}

	out := map[string]interface{}{
		"ddl":         ddl,
		"object_type": objectType,
	}
	switch {
	case dataCacheSet(ddl, "true"):
		out["data_cache_enabled"] = true
	case dataCacheSet(ddl, "false"):
		out["data_cache_enabled"] = false
	default:
		out["data_cache_enabled"] = nil
	}
	return out
}

// dataCacheSet checks both spellings the server has used for the
// property across versions.
func dataCacheSet(ddl, value string) bool {
	return strings.Contains(ddl, `"datacache.enable" = "`+value+`"`) ||
		strings.Contains(ddl, `"enable_data_cache" = "`+value+`"`) ||
		strings.Contains(ddl, `"data_cache.enable" = "`+value+`"`)
}

// rowsOf normalizes a result-set value: the SQL executor yields
// []map[string]interface{}, a session round trip yields []interface{}.
func rowsOf(v interface{}) []map[string]interface{} {
	switch rows := v.(type) {
	case []map[string]interface{}:
		return rows
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(rows))
		for _, r := range rows {
			if m, ok := r.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// profileText unwraps the single-cell result of get_query_profile.
func profileText(v interface{}) interface{} {
	rows, ok := v.([]map[string]interface{})
	if !ok || len(rows) == 0 {
		return v
	}
	for _, val := range rows[0] {
		return val
	}
	return v
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
