package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/remote"
)

const payload = `{
  "times": [
    {"id": 1000, "user_id": 1, "shift_id": 500,
     "start_time": "Mon, 08 Dec 2025 09:00:00 -0500",
     "end_time": "Mon, 08 Dec 2025 17:00:00 -0500",
     "location_id": 3, "location_name": "Main St"},
    {"id": 1001, "user_id": 1, "start_time": "Mon, 22 Dec 2025 09:00:00 -0500", "end_time": null},
    {"id": 1002, "user_id": 2, "start_time": "not a time", "break": 0}
  ],
  "users": [
    {"id": 1, "first_name": "Ada", "last_name": "Lovelace"},
    {"id": 2, "first_name": "Grace", "last_name": "Hopper"}
  ],
  "shifts": [
    {"id": 500, "start_time": "Mon, 08 Dec 2025 09:00:00 -0500", "end_time": "Mon, 08 Dec 2025 17:00:00 -0500"}
  ]
}`

var window = generic.Period{
	Start: generic.NewTimePoint(2025, time.December, 7),
	End:   generic.NewTimePoint(2025, time.December, 20),
}

func newYork(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestDecode_OptionalFieldsStayNil(t *testing.T) {
	p, err := remote.Decode(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, p.Times, 3)

	first := p.Times[0]
	require.NotNil(t, first.ShiftID)
	assert.Equal(t, int64(500), *first.ShiftID)
	assert.Nil(t, first.Break)
	assert.Equal(t, "Main St", first.LocationName)

	assert.Nil(t, p.Times[1].EndTime, "null end_time")
	assert.Nil(t, p.Times[1].ShiftID, "absent shift_id")

	require.NotNil(t, p.Times[2].Break)
	assert.Equal(t, 0, *p.Times[2].Break, "explicit zero break is kept")

	in := p.Input(time.UTC)
	assert.Equal(t, "Grace Hopper", in.Users[2].FullName())
	assert.Contains(t, in.Shifts, int64(500))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := remote.Decode(strings.NewReader(`{"times": [`))
	assert.Error(t, err)
}

func TestFileSource_NarrowsToWindow(t *testing.T) {
	// GIVEN: A saved batch spanning two pay periods plus an unreadable record
	// WHEN: Fetching the first period
	// THEN: The later record is dropped, the unreadable one is kept for the engine to report
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	src := &remote.FileSource{Path: path, Location: newYork(t)}
	in, err := src.Fetch(context.Background(), window)
	require.NoError(t, err)

	ids := make([]int64, 0, len(in.Records))
	for _, r := range in.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1000, 1002}, ids)
	require.NotNil(t, in.Window)
	assert.Equal(t, window.Start.String(), in.Window.Start.String())
	assert.Equal(t, newYork(t).String(), in.Location.String())
}

func TestFileSource_MissingFile(t *testing.T) {
	src := &remote.FileSource{Path: filepath.Join(t.TempDir(), "nope.json")}
	_, err := src.Fetch(context.Background(), window)
	assert.Error(t, err)
}

func TestHTTPSource_Fetch(t *testing.T) {
	var gotAuth, gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/times", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotStart = r.URL.Query().Get("start")
		gotEnd = r.URL.Query().Get("end")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	src := remote.NewHTTPSource(srv.URL+"/v2/", remote.StaticToken("secret-token"), newYork(t), time.Second, nil)
	in, err := src.Fetch(context.Background(), window)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "2025-12-07", gotStart)
	assert.Equal(t, "2025-12-21", gotEnd, "end is exclusive on the wire")
	assert.Len(t, in.Records, 3)
	assert.Len(t, in.Users, 2)
	require.NotNil(t, in.Window)
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := remote.NewHTTPSource(srv.URL, remote.StaticToken("old"), time.UTC, time.Second, nil)
	_, err := src.Fetch(context.Background(), window)

	var statusErr *remote.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Contains(t, statusErr.Body, "token expired")
}

func TestHTTPSource_NoCredentials(t *testing.T) {
	src := remote.NewHTTPSource("http://127.0.0.1:1", remote.StaticToken(""), time.UTC, time.Second, nil)
	_, err := src.Fetch(context.Background(), window)
	assert.ErrorIs(t, err, remote.ErrNoCredentials)
}
