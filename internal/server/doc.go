// Package server is the HTTP surface of tandem serve.
//
// Routes:
//
//	POST /api/v1/analyses          submit a zipped workspace and diff, returns 202 with the job id
//	GET  /api/v1/jobs              list jobs, newest first
//	GET  /api/v1/jobs/{id}         poll one job; unknown ids return 404 with status not_found
//	POST /api/v1/jobs/{id}/cancel  request cancellation; repeat calls are no-ops
//	GET  /healthz                  liveness
//	GET  /metrics                  Prometheus metrics
//
// Errors use a {error, code, message} JSON envelope.
package server
