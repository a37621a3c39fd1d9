package workflow

import "go.opentelemetry.io/otel"

var workflowTracer = otel.Tracer("ragflow.ragcore.workflow")
