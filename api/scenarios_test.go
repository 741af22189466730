package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) loadScenario(id string) LoadScenarioResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[LoadScenarioResponse](s.t, rec)
}

func (s *testServer) stats(employeeID string) StatsDTO {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/api/employees/"+employeeID+"/stats", nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[StatsDTO](s.t, rec)
}

func TestScenarioNewHire(t *testing.T) {
	s := newTestServer(t, jan15)

	res := s.loadScenario("new-hire")

	// THEN: no lot yet, the first grant is six months after joining
	assert.Equal(t, "demo-new-hire", res.EmployeeID)
	assert.Equal(t, 0, res.Lots)
	st := s.stats(res.EmployeeID)
	require.NotNil(t, st.NextGrantDate)
	assert.Equal(t, "2022-04-15", *st.NextGrantDate)
}

func TestScenarioFullTimer(t *testing.T) {
	s := newTestServer(t, jan15)

	res := s.loadScenario("full-timer")

	// THEN: 2019-11-15, 2020-11-15 and 2021-11-15 grants exist
	assert.Equal(t, 3, res.Lots)
	assert.Equal(t, 2, res.Requests)

	st := s.stats(res.EmployeeID)
	assert.Equal(t, 3.0, st.Used)
	assert.Equal(t, 1.0, st.Pending)

	rec := s.do(http.MethodGet, "/api/employees/"+res.EmployeeID+"/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reqs := decode[[]RequestDTO](t, rec)
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].Finalized)
	assert.Equal(t, "PENDING", reqs[1].Status)
}

func TestScenarioPartTimer(t *testing.T) {
	s := newTestServer(t, jan15)

	res := s.loadScenario("part-timer")

	rec := s.do(http.MethodGet, "/api/employees/"+res.EmployeeID+"/lots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lots := decode[[]LotDTO](t, rec)
	require.Len(t, lots, 2)
	granted := 0.0
	for _, l := range lots {
		granted += l.DaysGranted
	}
	assert.Equal(t, 15.0, granted)
	assert.Equal(t, 1.0, s.stats(res.EmployeeID).Used)
}

func TestScenarioFiveDayAlert(t *testing.T) {
	s := newTestServer(t, jan15)

	res := s.loadScenario("five-day-alert")

	st := s.stats(res.EmployeeID)
	assert.True(t, st.Alert.Needed)
	assert.Equal(t, "high", st.Alert.Urgency)
	assert.Equal(t, 10.0, st.Alert.LatestGrantDays)
	assert.Zero(t, st.Alert.Used)
}

func TestScenarioHourly(t *testing.T) {
	s := newTestServer(t, jan15)

	res := s.loadScenario("hourly")

	// THEN: the employee runs on the saved anniversary version
	assert.Equal(t, 1, res.Lots)
	rec := s.do(http.MethodGet, "/api/employees/"+res.EmployeeID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, hourlyConfigVersion, decode[EmployeeDTO](t, rec).ConfigVersion)

	rec = s.do(http.MethodGet, "/api/employees/"+res.EmployeeID+"/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reqs := decode[[]RequestDTO](t, rec)
	require.Len(t, reqs, 1)
	assert.Equal(t, "HOUR", reqs[0].Unit)
	assert.Equal(t, 0.5, reqs[0].TotalDays)

	// the preset was saved but not activated
	rec = s.do(http.MethodGet, "/api/config/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), hourlyConfigVersion)
}

func TestScenarioErrors(t *testing.T) {
	s := newTestServer(t, jan15)
	s.loadScenario("new-hire")

	tests := []struct {
		name string
		body LoadScenarioRequest
		want int
	}{
		{"already loaded", LoadScenarioRequest{ScenarioID: "new-hire"}, http.StatusConflict},
		{"unknown", LoadScenarioRequest{ScenarioID: "nope"}, http.StatusNotFound},
		{"missing id", LoadScenarioRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/scenarios/load", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListScenariosReportsLoaded(t *testing.T) {
	s := newTestServer(t, jan15)
	s.loadScenario("five-day-alert")

	rec := s.do(http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))
	for _, sc := range list {
		assert.Equal(t, sc.ID == "five-day-alert", sc.Loaded, sc.ID)
		assert.Equal(t, "demo-"+sc.ID, sc.EmployeeID)
	}
}
