package constant

type AnalysisStatus string

const (
	AnalysisStatusCompleted AnalysisStatus = "COMPLETED"
	AnalysisStatusFailed    AnalysisStatus = "FAILED"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

// User-facing messages. The frontend displays them verbatim.
const (
	MessageAnalysisSucceeded = "Video erfolgreich analysiert"
	MessageAnalysisFailed    = "Analyse des Videos fehlgeschlagen"
	MessageUploadFailed      = "Video konnte nicht gespeichert werden"
	MessageMissingFile       = "Es wurde keine Datei hochgeladen"
)

const (
	UploadField = "file"

	RoutingKeyAnalysisCompleted = "analysis.completed"
	RoutingKeyAnalysisFailed    = "analysis.failed"
)
