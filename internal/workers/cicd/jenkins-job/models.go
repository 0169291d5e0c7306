// internal/workers/cicd/jenkins-job/models.go
package jenkinsjob

type Input struct {
	Job        string            `json:"job"`
	Wait       bool              `json:"wait"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type Output struct {
	Job         string `json:"job"`
	BuildNumber int    `json:"build_number,omitempty"`
	Result      string `json:"result"`
	URL         string `json:"url,omitempty"`
	QueueID     int64  `json:"queue_id"`
	DurationMs  int64  `json:"duration_ms"`
	Queued      bool   `json:"queued"`
}

// Build results
const (
	ResultSuccess  = "SUCCESS"
	ResultUnstable = "UNSTABLE"
	ResultFailure  = "FAILURE"
	ResultAborted  = "ABORTED"
	ResultQueued   = "QUEUED"
	ResultStarted  = "STARTED"
)

type crumbResponse struct {
	CrumbRequestField string `json:"crumbRequestField"`
	Crumb             string `json:"crumb"`
}

type queueItem struct {
	ID         int64  `json:"id"`
	Cancelled  bool   `json:"cancelled"`
	Why        string `json:"why"`
	Executable *struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
	} `json:"executable"`
}

type buildInfo struct {
	Number   int    `json:"number"`
	Building bool   `json:"building"`
	Result   string `json:"result"`
	URL      string `json:"url"`
	Duration int64  `json:"duration"`
}
