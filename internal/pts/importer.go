package pts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"github.com/hexametals/finsync/internal/finsync"
	"github.com/hexametals/finsync/internal/store"
)

// Importer loads production-tracker CSV exports into the operational tables.
// The tracker is maintained in Excel on the shop floor, so the export comes
// in Windows-1252 with uneven quoting; rows are reconciled with the same
// hash-diff skip the financial sync uses, which makes re-importing the same
// file a no-op.
type Importer struct {
	storage *store.Storage
	log     *logrus.Logger
}

func NewImporter(storage *store.Storage, log *logrus.Logger) *Importer {
	return &Importer{storage: storage, log: log}
}

// Decode reads a tracker CSV into a dataframe.
// The exports are encoded in Windows-1252, not UTF-8.
func Decode(r io.Reader) (dataframe.DataFrame, error) {
	decoded := charmap.Windows1252.NewDecoder().Reader(r)
	df := dataframe.ReadCSV(decoded, dataframe.WithDelimiter(','), dataframe.WithLazyQuotes(true))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read tracker csv: %w", df.Err)
	}
	return df, nil
}

// ImportParts reconciles the raw-data sheet (one row per assembly part).
func (im *Importer) ImportParts(ctx context.Context, r io.Reader, projectNumber string) (*store.SyncRun, error) {
	started := time.Now()
	run := &store.SyncRun{EntityType: "assembly_parts", TriggeredBy: "pts_import"}

	df, err := Decode(r)
	if err != nil {
		return nil, err
	}

	for row := 0; row < df.Nrow(); row++ {
		mark := getStr("Part Mark", row, &df)
		if mark == "" {
			run.RecordsErrored++
			continue
		}

		part := &store.AssemblyPart{
			ProjectNumber:   projectNumber,
			PartDesignation: mark,
			Name:            getStr("Description", row, &df),
			Profile:         getStr("Profile", row, &df),
			Grade:           getStr("Grade", row, &df),
			Quantity:        getFloat("Qty", row, &df),
			WeightTotalKg:   getFloat("Total Weight", row, &df),
			BuildingName:    getStr("Building", row, &df),
		}
		part.SyncHash = finsync.Fingerprint(map[string]string{
			"project":  part.ProjectNumber,
			"name":     part.Name,
			"profile":  part.Profile,
			"grade":    part.Grade,
			"qty":      fmt.Sprintf("%g", part.Quantity),
			"weight":   fmt.Sprintf("%g", part.WeightTotalKg),
			"building": part.BuildingName,
		})

		existing, found, err := im.storage.Ops.AssemblyPartHash(ctx, mark)
		if err != nil {
			run.RecordsErrored++
			continue
		}
		if found && existing == part.SyncHash {
			run.RecordsUnchanged++
			continue
		}

		part.ID = uuid.NewString()
		if err := im.storage.Ops.UpsertAssemblyPart(ctx, part); err != nil {
			run.RecordsErrored++
			im.log.WithError(err).WithField("part", mark).Warn("part import failed")
			continue
		}
		if found {
			run.RecordsUpdated++
		} else {
			run.RecordsCreated++
		}
	}

	im.finishRun(ctx, run, started)
	return run, nil
}

// ImportLogs reconciles the process-log sheet (one row per process report).
func (im *Importer) ImportLogs(ctx context.Context, r io.Reader) (*store.SyncRun, error) {
	started := time.Now()
	run := &store.SyncRun{EntityType: "production_logs", TriggeredBy: "pts_import"}

	df, err := Decode(r)
	if err != nil {
		return nil, err
	}

	for row := 0; row < df.Nrow(); row++ {
		mark := getStr("Part Mark", row, &df)
		process := NormalizeProcess(getStr("Process", row, &df))
		reportNo := getStr("Report No", row, &df)
		if mark == "" || process == "" || reportNo == "" {
			run.RecordsErrored++
			continue
		}

		plog := &store.ProductionLog{
			PartDesignation: mark,
			Process:         process,
			ProcessedQty:    getFloat("Qty", row, &df),
			ProcessDate:     parseDate(getStr("Date", row, &df)),
			ProcessedBy:     getStr("Done By", row, &df),
			ReportNo:        reportNo,
		}
		plog.SyncHash = finsync.Fingerprint(map[string]string{
			"qty":  fmt.Sprintf("%g", plog.ProcessedQty),
			"date": getStr("Date", row, &df),
			"by":   plog.ProcessedBy,
		})

		existing, found, err := im.storage.Ops.ProductionLogHash(ctx, mark, process, reportNo)
		if err != nil {
			run.RecordsErrored++
			continue
		}
		if found && existing == plog.SyncHash {
			run.RecordsUnchanged++
			continue
		}

		if err := im.storage.Ops.UpsertProductionLog(ctx, plog); err != nil {
			run.RecordsErrored++
			im.log.WithError(err).WithField("part", mark).Warn("log import failed")
			continue
		}
		if found {
			run.RecordsUpdated++
		} else {
			run.RecordsCreated++
		}
	}

	im.finishRun(ctx, run, started)
	return run, nil
}

// processAliases folds the shop floor's spellings of each process stage into
// the canonical names the dashboards filter on.
var processAliases = map[string]string{
	"fitup":               "fit-up",
	"fit up":              "fit-up",
	"assembly":            "fit-up",
	"weld":                "welding",
	"welded":              "welding",
	"full welding":        "welding",
	"blast":               "blasting",
	"sandblasting":        "blasting",
	"paint":               "painting",
	"painted":             "painting",
	"blasting & painting": "painting",
	"cut":                 "cutting",
	"cnc cutting":         "cutting",
	"dispatch":            "dispatched",
	"delivery":            "dispatched",
}

func NormalizeProcess(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := processAliases[p]; ok {
		return canonical
	}
	return p
}

// parseDate tries the formats seen in tracker exports; anything else is NULL.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2-Jan-06"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func (im *Importer) finishRun(ctx context.Context, run *store.SyncRun, started time.Time) {
	run.RecordsTotal = run.RecordsCreated + run.RecordsUpdated + run.RecordsUnchanged + run.RecordsErrored
	run.DurationMs = time.Since(started).Milliseconds()
	run.Status = store.SyncStatusSuccess
	if run.RecordsErrored > 0 {
		run.Status = store.SyncStatusPartial
	}
	if err := im.storage.SyncLog.Record(ctx, run); err != nil {
		im.log.WithError(err).Warn("could not record import run")
	}
}

func getStr(col string, rowIdx int, df *dataframe.DataFrame) string {
	if df == nil || !hasColumn(df, col) {
		return ""
	}
	v := df.Col(col).Elem(rowIdx).String()
	if v == "NaN" {
		return ""
	}
	return strings.TrimSpace(v)
}

func getFloat(col string, rowIdx int, df *dataframe.DataFrame) float64 {
	if df == nil || !hasColumn(df, col) {
		return 0
	}
	v := df.Col(col).Elem(rowIdx).Float()
	if v != v { // NaN
		return 0
	}
	return v
}

func hasColumn(df *dataframe.DataFrame, col string) bool {
	for _, name := range df.Names() {
		if name == col {
			return true
		}
	}
	return false
}
