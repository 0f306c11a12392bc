// Package metrics provides run and phase metrics for the build pipeline.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics stay optional without nil checks:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	orchestrator := pipeline.New(deps, pipeline.WithRecorder(recorder))
//
// PrometheusRecorder registers its collectors on the registry it is given and
// HTTPHandler exposes that registry.
package metrics
