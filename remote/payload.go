/*
payload.go - Scheduling API batch format

PURPOSE:
  Decodes the JSON body the scheduling API returns for a time query
  (times, plus the users and shifts they reference) into a
  timesheet.SyncInput. Both sources and the POST /api/sync handler share it.

FORMAT:
  {
    "times":  [{"id": 1000, "user_id": 1, "shift_id": 500,
                "start_time": "Mon, 08 Dec 2025 09:00:00 -0500",
                "end_time":   "Mon, 08 Dec 2025 17:00:00 -0500",
                "break": 60, "location_id": 3, "location_name": "Main St"}],
    "users":  [{"id": 1, "first_name": "Ada", "last_name": "Lovelace"}],
    "shifts": [{"id": 500, "start_time": "...", "end_time": "...", "break": 60}]
  }

  Optional fields may be absent or null; absence is preserved as nil.

SEE ALSO:
  - timesheet/types.go: RemoteTimeRecord, RemoteUser, RemoteShift
*/
package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// Payload is one decoded batch.
type Payload struct {
	Times  []timesheet.RemoteTimeRecord `json:"times"`
	Users  []timesheet.RemoteUser       `json:"users"`
	Shifts []timesheet.RemoteShift      `json:"shifts"`
}

// Decode reads one JSON payload.
func Decode(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode remote payload: %w", err)
	}
	return p, nil
}

// Input indexes users and shifts by id. Later duplicates win.
func (p Payload) Input(loc *time.Location) timesheet.SyncInput {
	in := timesheet.SyncInput{
		Records:  p.Times,
		Users:    make(map[int64]timesheet.RemoteUser, len(p.Users)),
		Shifts:   make(map[int64]timesheet.RemoteShift, len(p.Shifts)),
		Location: loc,
	}
	for _, u := range p.Users {
		in.Users[u.ID] = u
	}
	for _, s := range p.Shifts {
		in.Shifts[s.ID] = s
	}
	return in
}

// InWindow keeps records whose clock-in date falls inside window.
// Records with an unreadable clock-in are kept; the engine reports them.
func (p Payload) InWindow(window generic.Period, loc *time.Location) Payload {
	out := Payload{Users: p.Users, Shifts: p.Shifts}
	for _, rec := range p.Times {
		start, err := generic.ParseLocal(rec.StartTime, loc)
		if err != nil || window.Contains(generic.DateOf(start)) {
			out.Times = append(out.Times, rec)
		}
	}
	return out
}
