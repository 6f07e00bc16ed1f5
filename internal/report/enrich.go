package report

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Risk event texts are generated with raw entity ids baked in
// ("Task:4f9d... is 12 days overdue"). Enrichment swaps those ids for the
// entity's display name so the dashboard reads like language, not a dump.
// Three passes, most specific first: module-prefixed ids, quoted ids, then
// bare UUIDs anywhere in the text.

var (
	moduleRefPattern = regexp.MustCompile(`\b(Task|WorkOrder|RFIRequest|DocumentSubmission|AssemblyPart):([0-9a-fA-F-]{36})`)
	quotedIDPattern  = regexp.MustCompile(`['"]([0-9a-fA-F-]{36})['"]`)
	bareUUIDPattern  = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
)

// enrichText substitutes known entity ids with their names. Unknown ids stay
// as they are; a wrong substitution is worse than a raw id.
func enrichText(text string, names map[string]string) string {
	out := moduleRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := moduleRefPattern.FindStringSubmatch(match)
		id := sub[2]
		if _, err := uuid.Parse(id); err != nil {
			return match
		}
		if name, ok := names[id]; ok && name != "" {
			return fmt.Sprintf("%s \"%s\"", humanModule(sub[1]), name)
		}
		return match
	})

	out = quotedIDPattern.ReplaceAllStringFunc(out, func(match string) string {
		sub := quotedIDPattern.FindStringSubmatch(match)
		if name, ok := names[sub[1]]; ok && name != "" {
			return fmt.Sprintf("\"%s\"", name)
		}
		return match
	})

	out = bareUUIDPattern.ReplaceAllStringFunc(out, func(match string) string {
		if name, ok := names[match]; ok && name != "" {
			return fmt.Sprintf("\"%s\"", name)
		}
		return match
	})

	return out
}

func humanModule(module string) string {
	switch module {
	case "Task":
		return "task"
	case "WorkOrder":
		return "work order"
	case "RFIRequest":
		return "RFI"
	case "DocumentSubmission":
		return "document submission"
	case "AssemblyPart":
		return "assembly part"
	}
	return module
}
