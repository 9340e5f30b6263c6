package prometheus

import (
	"net/http/httptest"
	"testing"

	"github.com/Dhenz14/HivePoA-sub000/shared"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

type mockService struct {
	status error
}

func (m *mockService) Start()        {}
func (m *mockService) Stop() error   { return nil }
func (m *mockService) Status() error { return m.status }

func TestLifecycle(t *testing.T) {
	hook := logTest.NewGlobal()
	prometheusService := NewService(":2112", shared.NewServiceRegistry())

	prometheusService.Start()
	assert.LogsContain(t, hook, "Starting service")

	require.NoError(t, prometheusService.Stop())
	assert.LogsContain(t, hook, "Stopping service")
}

func TestHealthz(t *testing.T) {
	registry := shared.NewServiceRegistry()
	m := &mockService{}
	require.NoError(t, registry.RegisterService(m))
	s := NewService("" /* addr */, registry)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.healthzHandler(w, req)

	assert.Equal(t, 200, w.Code)

	body := w.Body.String()
	assert.Equal(t, true, len(body) > 0, "expected healthz body")

	m.status = errors.New("something is wrong")
	w = httptest.NewRecorder()
	s.healthzHandler(w, req)
	assert.Equal(t, 500, w.Code)
}
