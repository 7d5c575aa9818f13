package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regdoc_rag_retrieval_duration_seconds",
			Help:    "Retrieval duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regdoc_rag_retrieval_total",
			Help: "Total number of retrieval calls",
		},
		[]string{"status"},
	)

	FilterRelaxations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regdoc_rag_filter_relaxations_total",
			Help: "Retrievals that fell back to a relaxed filter level",
		},
		[]string{"level"},
	)

	EmbeddingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regdoc_rag_embedding_cache_hits_total",
			Help: "Embedding requests served from the disk cache",
		},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regdoc_rag_documents_ingested_total",
			Help: "Documents processed by the ingestion pipeline",
		},
	)

	ChunksStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regdoc_rag_chunks_stored_total",
			Help: "Chunks written to the vector store",
		},
	)

	IngestionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regdoc_rag_ingestion_errors_total",
			Help: "Per-file ingestion failures",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		RetrievalDuration,
		RetrievalTotal,
		FilterRelaxations,
		EmbeddingCacheHits,
		DocumentsIngested,
		ChunksStored,
		IngestionErrors,
	)
}

// Handler exposes the prometheus scrape endpoint as a fiber handler.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
