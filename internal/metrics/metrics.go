package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_llm_requests_total",
			Help: "Total number of model generation attempts",
		},
		[]string{"backend", "outcome"},
	)

	KeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_key_rotations_total",
			Help: "Total number of API key rotations after a 429 or 401",
		},
	)

	DuplicateQuestions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_duplicate_questions_total",
			Help: "Total number of generated follow-up questions rejected as duplicates",
		},
	)

	FlowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_flow_transitions_total",
			Help: "Number of conversation steps by stage entered",
		},
		[]string{"stage"},
	)

	HospitalResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_hospital_results_total",
			Help: "Hospitals returned by source",
		},
		[]string{"source"},
	)

	SessionSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_session_saves_total",
			Help: "Session persistence attempts by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)
