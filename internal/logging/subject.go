package logging

import "strings"

// FormatSubject builds the job/step subject string used in console output.
func FormatSubject(jobID, step string) string {
	jobID = strings.TrimSpace(jobID)
	step = strings.TrimSpace(step)
	switch {
	case jobID != "" && step != "":
		return jobID + "/" + step
	case jobID != "":
		return jobID
	default:
		return step
	}
}
