package geotab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/osoriofleet/fleetkm/server/internal/config"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	return args.Get(0).(*http.Response), args.Error(1)
}

func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Server:      "my.geotab.com",
		Username:    "ops@osoriofleet.mx",
		Password:    "secret",
		Database:    "osoriofleet",
		DeviceGroup: "b27A3",
	}
}

const authResponse = `{"result": {"credentials": {"userName": "ops@osoriofleet.mx", "database": "osoriofleet", "sessionId": "abc123"}, "path": "my.geotab.com"}}`

func TestAuthenticate(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, authResponse), nil)

	client := NewClientWithHTTPDoer(testConfig(), "https://my.geotab.com/apiv1", mockHTTP)

	err := client.Authenticate(context.Background())
	require.NoError(t, err)
	mockHTTP.AssertNumberOfCalls(t, "Do", 1)
}

func TestAuthenticate_APIError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, `{"error": {"message": "Incorrect login credentials", "name": "InvalidUserException"}}`), nil)

	client := NewClientWithHTTPDoer(testConfig(), "https://my.geotab.com/apiv1", mockHTTP)

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect login credentials")
}

func TestListVehicles_FiltersByGroup(t *testing.T) {
	devicesResponse := `{"result": [
		{"id": "b1", "name": "T-101", "licensePlate": "ABC-1234", "groups": [{"id": "b27A3"}]},
		{"id": "b2", "name": "T-102", "licensePlate": "DEF-5678", "groups": [{"id": "other"}]},
		{"id": "b3", "name": "T-103", "groups": [{"id": "other"}, {"id": "b27A3"}]}
	]}`

	mockHTTP := &MockHTTPDoer{}
	// First call authenticates, second lists devices
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, authResponse), nil).Once()
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, devicesResponse), nil).Once()

	client := NewClientWithHTTPDoer(testConfig(), "https://my.geotab.com/apiv1", mockHTTP)

	devices, err := client.ListVehicles(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 2, "Only devices in the configured group")
	assert.Equal(t, "T-101", devices[0].Name)
	assert.Equal(t, "T-103", devices[1].Name)
}

func TestFetchTrace(t *testing.T) {
	traceResponse := `{"result": [
		{"latitude": 27.46, "longitude": -99.76, "dateTime": "2025-11-03T08:00:00Z"},
		{"latitude": 0, "longitude": 0, "dateTime": "2025-11-03T08:01:00Z"},
		{"latitude": 27.49, "longitude": -99.51, "dateTime": "2025-11-03T08:02:00Z"}
	]}`

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, authResponse), nil).Once()
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, traceResponse), nil).Once()

	client := NewClientWithHTTPDoer(testConfig(), "https://my.geotab.com/apiv1", mockHTTP)

	from := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	points, err := client.FetchTrace(context.Background(), "b1", from, to)
	require.NoError(t, err)

	require.Len(t, points, 2, "Records without a fix are skipped")
	assert.Equal(t, 27.46, points[0].Latitude)
	assert.Equal(t, -99.76, points[0].Longitude)
	assert.Equal(t, "2025-11-03T08:00:00Z", points[0].Timestamp)
}

func TestFetchTrace_RequestShape(t *testing.T) {
	var captured []byte

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, authResponse), nil).Once()
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		req := args.Get(0).(*http.Request)
		captured, _ = io.ReadAll(req.Body)
	}).Return(createMockResponse(200, `{"result": []}`), nil).Once()

	client := NewClientWithHTTPDoer(testConfig(), "https://my.geotab.com/apiv1", mockHTTP)

	from := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchTrace(context.Background(), "b1", from, from.Add(24*time.Hour))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &body))
	assert.Equal(t, "Get", body["method"])

	params := body["params"].(map[string]interface{})
	assert.Equal(t, "LogRecord", params["typeName"])
	search := params["search"].(map[string]interface{})
	assert.Equal(t, "2025-11-03T00:00:00Z", search["fromDate"])
	assert.Equal(t, "2025-11-04T00:00:00Z", search["toDate"])
}

func TestFetchTrace_HTTPError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, authResponse), nil).Once()
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(503, "upstream unavailable"), nil).Once()

	client := NewClientWithHTTPDoer(testConfig(), "https://my.geotab.com/apiv1", mockHTTP)

	_, err := client.FetchTrace(context.Background(), "b1", time.Now().Add(-24*time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
