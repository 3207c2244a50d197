// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/changebus"
	"github.com/minbar-platform/minbar/services/assistant/generation"
	"github.com/minbar-platform/minbar/services/assistant/handlers"
	"github.com/minbar-platform/minbar/services/assistant/history"
	"github.com/minbar-platform/minbar/services/assistant/intent"
	"github.com/minbar-platform/minbar/services/assistant/knowledge"
	"github.com/minbar-platform/minbar/services/assistant/middleware"
	"github.com/minbar-platform/minbar/services/assistant/observability"
	"github.com/minbar-platform/minbar/services/assistant/prompt"
	"github.com/minbar-platform/minbar/services/assistant/routes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "minbar-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient parses WEAVIATE_SERVICE_URL and builds the client. The
// assistant cannot run without its knowledge store, so a missing or invalid
// URL is fatal here, unlike services that have a lightweight mode.
func newWeaviateClient() (*weaviate.Client, error) {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" {
		weaviateURL = "http://minbar-weaviate:8080"
	}
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil {
		return nil, err
	}
	return weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
}

// resolveModel picks the generation model: GENERATION_MODEL first, then the
// backend-specific override, then the backend's default.
func resolveModel(backend generation.Backend) string {
	if model := os.Getenv("GENERATION_MODEL"); model != "" {
		return model
	}
	if backend.Name() == generation.BackendOpenAI {
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return generation.DefaultOpenAIModel
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		return model
	}
	return generation.DefaultGeminiModel
}

func main() {
	port := os.Getenv("ASSISTANT_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient, err := newWeaviateClient()
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}

	backend, err := generation.NewBackend(os.Getenv("GENERATION_BACKEND"))
	if err != nil {
		log.Fatalf("Failed to initialize generation backend: %v", err)
	}
	slog.Info("Configured generation backend", "backend", backend.Name())

	classifier, err := intent.NewClassifier()
	if err != nil {
		log.Fatalf("Failed to load intent rules: %v", err)
	}

	observability.InitMetrics()

	pipeline := &handlers.ChatPipeline{
		Classifier: classifier,
		Knowledge: knowledge.NewAggregator(
			knowledge.NewWeaviateStore(weaviateClient),
			knowledge.NewWeaviateSearcher(weaviateClient)),
		Prompts:   prompt.NewBuilder(),
		Generator: generation.NewStreamer(backend, resolveModel(backend)),
		History:   history.NewWeaviateStore(weaviateClient),
		Bus:       changebus.NewBus(),
		Metrics:   observability.DefaultMetrics,
	}

	var validator middleware.SessionValidator = middleware.NopValidator{}
	if token := os.Getenv("ASSISTANT_API_TOKEN"); token != "" {
		validator = middleware.StaticTokenValidator{Token: token}
		slog.Info("Static token auth enabled")
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, pipeline, validator)

	log.Println("Starting the assistant server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
