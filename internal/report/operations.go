package report

import (
	"context"
	"fmt"
	"time"

	"github.com/hexametals/finsync/internal/store"
)

const priorityActionCap = 10

// Risk is one unresolved risk event after orphan filtering and text
// enrichment.
type Risk struct {
	ID                 string     `json:"id"`
	Severity           string     `json:"severity"`
	Type               string     `json:"type"`
	Reason             string     `json:"reason"`
	RecommendedAction  string     `json:"recommendedAction"`
	AffectedProjectIDs []string   `json:"affectedProjectIds"`
	AffectedWorkUnits  []string   `json:"affectedWorkUnitIds"`
	DetectedAt         time.Time  `json:"detectedAt"`
	ResolvedAt         *time.Time `json:"resolvedAt"`
}

type PriorityAction struct {
	RiskID   string `json:"riskId"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

type OperationsSummary struct {
	TotalRisks int            `json:"totalRisks"`
	BySeverity map[string]int `json:"bySeverity"`
	ByType     map[string]int `json:"byType"`
}

type OperationsReport struct {
	Summary          OperationsSummary `json:"summary"`
	Risks            []Risk            `json:"risks"`
	AffectedProjects []store.Project   `json:"affectedProjects"`
	PriorityActions  []PriorityAction  `json:"priorityActions"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}

// OperationsControl assembles the risk dashboard: unresolved events in
// severity order, minus events whose every referenced work unit has been
// deleted since detection, with entity ids in the narrative text replaced by
// display names.
func (b *Builder) OperationsControl(ctx context.Context) (*OperationsReport, error) {
	events, err := b.storage.Risks.Unresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unresolved risks: %w", err)
	}

	units, names, err := b.resolveWorkUnits(ctx, events)
	if err != nil {
		return nil, err
	}

	report := &OperationsReport{
		GeneratedAt: time.Now().UTC(),
		Summary: OperationsSummary{
			BySeverity: map[string]int{},
			ByType:     map[string]int{},
		},
	}

	projectIDs := map[string]bool{}
	for i := range events {
		ev := &events[i]
		if isOrphaned(ev, units) {
			continue
		}

		risk := Risk{
			ID:                 ev.ID,
			Severity:           ev.Severity,
			Type:               ev.Type,
			Reason:             enrichText(ev.Reason, names),
			RecommendedAction:  enrichText(ev.RecommendedAction, names),
			AffectedProjectIDs: ev.AffectedProjectIDs,
			AffectedWorkUnits:  ev.AffectedWorkUnitIDs,
			DetectedAt:         ev.DetectedAt,
			ResolvedAt:         ev.ResolvedAt,
		}
		report.Risks = append(report.Risks, risk)
		report.Summary.BySeverity[ev.Severity]++
		report.Summary.ByType[ev.Type]++

		for _, id := range ev.AffectedProjectIDs {
			projectIDs[id] = true
		}

		if len(report.PriorityActions) < priorityActionCap &&
			(ev.Severity == store.SeverityCritical || ev.Severity == store.SeverityHigh) {
			report.PriorityActions = append(report.PriorityActions, PriorityAction{
				RiskID:   ev.ID,
				Severity: ev.Severity,
				Action:   risk.RecommendedAction,
			})
		}
	}
	report.Summary.TotalRisks = len(report.Risks)

	if len(projectIDs) > 0 {
		ids := make([]string, 0, len(projectIDs))
		for id := range projectIDs {
			ids = append(ids, id)
		}
		projects, err := b.storage.Ops.ProjectsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load affected projects: %w", err)
		}
		report.AffectedProjects = projects
	}
	return report, nil
}

type resolvedUnit struct {
	unit   store.WorkUnit
	exists bool
}

// resolveWorkUnits preloads every work unit referenced by the events, checks
// whether the entity each one points at still exists, and collects display
// names for text enrichment. The name map is keyed by both the work unit id
// and the underlying reference id, since risk texts mention either; an
// existing entity with an empty name still counts as present.
func (b *Builder) resolveWorkUnits(ctx context.Context, events []store.RiskEvent) (map[string]*resolvedUnit, map[string]string, error) {
	idSet := map[string]bool{}
	for i := range events {
		for _, id := range events[i].AffectedWorkUnitIDs {
			idSet[id] = true
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	units, err := b.storage.Ops.WorkUnits(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load work units: %w", err)
	}

	resolved := map[string]*resolvedUnit{}
	names := map[string]string{}
	for _, u := range units {
		exists, err := b.storage.Ops.ReferenceExists(ctx, u.ReferenceModule, u.ReferenceID)
		if err != nil {
			return nil, nil, fmt.Errorf("check %s %s: %w", u.ReferenceModule, u.ReferenceID, err)
		}
		resolved[u.ID] = &resolvedUnit{unit: u, exists: exists}
		if !exists {
			continue
		}
		name, err := b.storage.Ops.ReferenceName(ctx, u.ReferenceModule, u.ReferenceID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %s %s: %w", u.ReferenceModule, u.ReferenceID, err)
		}
		if name != "" {
			names[u.ID] = name
			names[u.ReferenceID] = name
		}
	}
	return resolved, names, nil
}

// isOrphaned reports whether every work unit an event references is gone.
// Events with no work-unit references are never orphaned: they describe
// project-level conditions.
func isOrphaned(ev *store.RiskEvent, units map[string]*resolvedUnit) bool {
	if len(ev.AffectedWorkUnitIDs) == 0 {
		return false
	}
	for _, id := range ev.AffectedWorkUnitIDs {
		if u, ok := units[id]; ok && u.exists {
			return false
		}
	}
	return true
}
