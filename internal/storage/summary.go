package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

type SystemSummary struct {
	AvgCPU         *float64 `json:"avg_cpu,omitempty"`
	MaxCPU         *float64 `json:"max_cpu,omitempty"`
	AvgMemoryUsed  *float64 `json:"avg_memory_used,omitempty"`
	AvgBattery     *float64 `json:"avg_battery_level,omitempty"`
	AvgTemperature *float64 `json:"avg_cpu_temperature,omitempty"`
}

type AppSummary struct {
	PackageName   string   `json:"package_name"`
	Samples       int      `json:"samples"`
	AvgCPU        *float64 `json:"avg_cpu,omitempty"`
	MaxCPU        *float64 `json:"max_cpu,omitempty"`
	AvgMemoryPSS  *float64 `json:"avg_memory_pss,omitempty"`
	MaxMemoryPSS  *float64 `json:"max_memory_pss,omitempty"`
	AvgFPS        *float64 `json:"avg_fps,omitempty"`
	AvgPowerUsage *float64 `json:"avg_power_usage,omitempty"`
}

type SessionSummary struct {
	Session  Session                      `json:"session"`
	Duration time.Duration                `json:"duration"`
	Counts   map[telemetry.RecordType]int `json:"counts"`
	System   SystemSummary                `json:"system"`
	Apps     []AppSummary                 `json:"apps"`
}

// Summary returns record counts and averages for a session.
func (r *Repository) Summary(ctx context.Context, id int64) (*SessionSummary, error) {
	errFactory := errors.New()

	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	sum := &SessionSummary{
		Session:  *s,
		Duration: s.Duration(r.now()),
		Counts:   make(map[telemetry.RecordType]int, len(telemetry.RecordTypes)),
	}

	for _, rt := range telemetry.RecordTypes {
		var n int
		if err := r.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+recordTables[rt].name+" WHERE session_id = ?", id).Scan(&n); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		sum.Counts[rt] = n
	}

	var avgCPU, maxCPU, avgMem, avgBattery, avgTemp sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, `
        SELECT AVG(cpu_usage), MAX(cpu_usage), AVG(memory_used),
               AVG(battery_level), AVG(cpu_temperature)
        FROM system_records WHERE session_id = ?
    `, id).Scan(&avgCPU, &maxCPU, &avgMem, &avgBattery, &avgTemp); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	sum.System = SystemSummary{
		AvgCPU:         nullFloat(avgCPU),
		MaxCPU:         nullFloat(maxCPU),
		AvgMemoryUsed:  nullFloat(avgMem),
		AvgBattery:     nullFloat(avgBattery),
		AvgTemperature: nullFloat(avgTemp),
	}

	apps, err := r.appSummaries(ctx, id)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	sum.Apps = apps

	return sum, nil
}

func (r *Repository) appSummaries(ctx context.Context, id int64) ([]AppSummary, error) {
	byPackage := make(map[string]*AppSummary)
	get := func(pkg string) *AppSummary {
		a, ok := byPackage[pkg]
		if !ok {
			a = &AppSummary{PackageName: pkg}
			byPackage[pkg] = a
		}
		return a
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT package_name, COUNT(*), AVG(cpu_usage), MAX(cpu_usage),
               AVG(memory_pss), MAX(memory_pss)
        FROM app_records WHERE session_id = ?
        GROUP BY package_name
    `, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			pkg                            string
			n                              int
			avgCPU, maxCPU, avgPSS, maxPSS sql.NullFloat64
		)
		if err := rows.Scan(&pkg, &n, &avgCPU, &maxCPU, &avgPSS, &maxPSS); err != nil {
			rows.Close()
			return nil, err
		}
		a := get(pkg)
		a.Samples = n
		a.AvgCPU = nullFloat(avgCPU)
		a.MaxCPU = nullFloat(maxCPU)
		a.AvgMemoryPSS = nullFloat(avgPSS)
		a.MaxMemoryPSS = nullFloat(maxPSS)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	averages := []struct {
		query string
		set   func(*AppSummary, *float64)
	}{
		{
			query: "SELECT package_name, AVG(fps) FROM fps_records WHERE session_id = ? GROUP BY package_name",
			set:   func(a *AppSummary, v *float64) { a.AvgFPS = v },
		},
		{
			query: "SELECT package_name, AVG(power_usage) FROM power_records WHERE session_id = ? GROUP BY package_name",
			set:   func(a *AppSummary, v *float64) { a.AvgPowerUsage = v },
		},
	}
	for _, avg := range averages {
		rows, err := r.db.QueryContext(ctx, avg.query, id)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				pkg string
				v   sql.NullFloat64
			)
			if err := rows.Scan(&pkg, &v); err != nil {
				rows.Close()
				return nil, err
			}
			avg.set(get(pkg), nullFloat(v))
		}
		if err := closeRows(rows); err != nil {
			return nil, err
		}
	}

	out := make([]AppSummary, 0, len(byPackage))
	for _, a := range byPackage {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })

	return out, nil
}

// SessionExport is the JSON document written by Export.
type SessionExport struct {
	Session Session                                   `json:"session"`
	Records map[telemetry.RecordType][]map[string]any `json:"records"`
}

// Export writes a session and all its records as JSON. Absent metrics are
// omitted from each row.
func (r *Repository) Export(ctx context.Context, id int64, w io.Writer) error {
	errFactory := errors.New()

	s, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}

	doc := SessionExport{
		Session: *s,
		Records: make(map[telemetry.RecordType][]map[string]any, len(telemetry.RecordTypes)),
	}

	for _, rt := range telemetry.RecordTypes {
		rows, err := r.exportTable(ctx, recordTables[rt], id)
		if err != nil {
			return errFactory.WithData(ErrStorageAccess, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "export",
				Table: recordTables[rt].name,
				Error: err.Error(),
			})
		}
		doc.Records[rt] = rows
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}

func (r *Repository) exportTable(ctx context.Context, t recordTable, id int64) ([]map[string]any, error) {
	names := append([]string{"timestamp"}, t.columnNames()...)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+strings.Join(names, ", ")+" FROM "+t.name+
			" WHERE session_id = ? ORDER BY timestamp, id", id)
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			return nil, err
		}

		row := make(map[string]any, len(names))
		for i, name := range names {
			switch v := values[i].(type) {
			case nil:
			case []byte:
				row[name] = string(v)
			default:
				row[name] = v
			}
		}
		if ms, ok := values[0].(int64); ok {
			row["timestamp"] = time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
		}
		out = append(out, row)
	}

	return out, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}

	return rows.Close()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}

	return &v.Float64
}
