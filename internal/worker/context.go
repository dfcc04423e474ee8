package worker

import (
	"encoding/json"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

// reportContext is the default context extractor: it pulls the bug-report
// linkage all payload shapes share. Extraction is best-effort; a payload
// that does not decode simply contributes nothing.
func reportContext(job *models.Job, result json.RawMessage) map[string]any {
	out := map[string]any{}
	if job == nil {
		return out
	}
	var common struct {
		BugReportID string `json:"bug_report_id"`
		ProjectID   string `json:"project_id"`
	}
	if err := json.Unmarshal(job.Payload, &common); err == nil {
		if common.BugReportID != "" {
			out["bug_report_id"] = common.BugReportID
		}
		if common.ProjectID != "" {
			out["project_id"] = common.ProjectID
		}
	}
	if len(result) > 0 {
		out["result_bytes"] = len(result)
	}
	return out
}
