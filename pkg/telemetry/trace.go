package telemetry

import (
	"context"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/coretrace/coretrace/pkg/buildinfo"
)

// Tracer returns an otel tracer named after the calling package.
func Tracer() trace.Tracer {
	pkg, _ := callerInfo(1)
	return otel.Tracer(pkg)
}

func callerInfo(skip int) (pkg, fn string) {
	pc, _, _, _ := runtime.Caller(1 + skip)
	funcName := runtime.FuncForPC(pc).Name()
	lastSlash := strings.LastIndexByte(funcName, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	lastDot := strings.LastIndexByte(funcName[lastSlash:], '.') + lastSlash

	pkg = funcName[:lastDot]
	fn = funcName[lastDot+1:]

	return
}

func OtelResource(ctx context.Context, name string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNamespaceKey.String("coretrace")),
		resource.WithAttributes(semconv.ServiceNameKey.String(name)),
		resource.WithAttributes(semconv.ServiceVersionKey.String(buildinfo.Version())),
		resource.WithAttributes(semconv.ServiceInstanceIDKey.String(InstanceID())),
		resource.WithAttributes(semconv.HostNameKey.String(Hostname())),
	)
}
