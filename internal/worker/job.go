package worker

import "github.com/inetanalyzer/agent/internal/measure"

// Job is one fetch kind of one sampled endpoint. Index orders results.
type Job struct {
	Index int
	Spec  measure.EndpointSpec
	Kind  measure.Kind
}

// Jobs expands sampled endpoints into jobs, HTTP before HTTPS per endpoint.
func Jobs(specs []measure.EndpointSpec) []Job {
	jobs := make([]Job, 0, len(specs)*2)
	for _, spec := range specs {
		for _, kind := range spec.Kinds.FetchKinds() {
			jobs = append(jobs, Job{Index: len(jobs), Spec: spec, Kind: kind})
		}
	}
	return jobs
}
