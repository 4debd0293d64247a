package appointment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "08:00", want: TimeOfDay{Hour: 8}},
		{in: " 17:45 ", want: TimeOfDay{Hour: 17, Minute: 45}},
		{in: "09:30:00", want: TimeOfDay{Hour: 9, Minute: 30}},
		{in: "18:00:59", wantErr: true},
		{in: "09:30:01", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "9h", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestTimeOfDay_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		At TimeOfDay `json:"at"`
	}{At: TimeOfDay{Hour: 8, Minute: 5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"08:05"}`, string(b))

	var v struct {
		At TimeOfDay `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"14:20"}`), &v))
	assert.Equal(t, 14*60+20, v.At.Minutes())

	assert.Error(t, json.Unmarshal([]byte(`{"at":"2pm"}`), &v))
}

func TestAppointment_Interval(t *testing.T) {
	a := Appointment{
		Date:            time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Time:            MustParseTimeOfDay("17:45"),
		DurationMinutes: 45,
	}

	assert.Equal(t, "18:30", a.EndTime().String())
	assert.Equal(t, time.Date(2025, 3, 10, 17, 45, 0, 0, lima), a.StartAt(lima))
	assert.Equal(t, time.Date(2025, 3, 10, 18, 30, 0, 0, lima), a.EndAt(lima))

	assert.False(t, a.IsPast(time.Date(2025, 3, 10, 17, 44, 0, 0, lima)))
	assert.True(t, a.IsPast(time.Date(2025, 3, 10, 17, 46, 0, 0, lima)))
}

func TestCivilDate_DropsZone(t *testing.T) {
	late := time.Date(2025, 3, 10, 23, 30, 0, 0, lima)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), CivilDate(late))

	_, err := ParseDate("2025-02-30")
	assert.Error(t, err)
}
