package observability

// Attribute keys used on spans and metrics.
const (
	AttrMode      = "generation.mode"
	AttrOutcome   = "generation.outcome"
	AttrStage     = "generation.stage"
	AttrJobID     = "generation.job_id"
	AttrModel     = "generation.model"
	AttrStatus    = "http.status_code"
	AttrObjectKey = "storage.object_key"
)
