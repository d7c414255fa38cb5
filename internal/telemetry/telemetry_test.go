package telemetry

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(Config{ServiceName: "clinic-queue"}, logrus.New())
	assert.NoError(t, shutdown(context.Background()))
}

func TestResourceCarriesServiceAttributes(t *testing.T) {
	res := newResource(Config{ServiceName: "clinic-queue", ServiceVersion: "1.4.0", Environment: "staging"})

	values := map[string]string{}
	for _, kv := range res.Attributes() {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "clinic-queue", values[string(semconv.ServiceNameKey)])
	assert.Equal(t, "qms", values[string(semconv.ServiceNamespaceKey)])
	assert.Equal(t, "1.4.0", values[string(semconv.ServiceVersionKey)])
	assert.Equal(t, "staging", values[string(semconv.DeploymentEnvironmentKey)])
}

func TestSampleRatioDefaultsToAlways(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(3))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}
