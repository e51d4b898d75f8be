package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) Date { return Date{Year: y, Month: m, Day: d} }

func TestPresetOccursOn(t *testing.T) {
	monday := date(2026, time.March, 2)

	t.Run("daily with interval", func(t *testing.T) {
		start := monday
		p := Preset{Frequency: FrequencyDaily, Interval: 2, StartDate: &start}

		assert.True(t, p.OccursOn(monday))
		assert.False(t, p.OccursOn(monday.AddDays(1)))
		assert.True(t, p.OccursOn(monday.AddDays(2)))
		assert.False(t, p.OccursOn(monday.AddDays(-2)))
	})

	t.Run("weekly on given weekdays", func(t *testing.T) {
		start := monday
		p := Preset{
			Frequency: FrequencyWeekly,
			Interval:  1,
			ByWeekday: []Weekday{Tuesday, Thursday},
			StartDate: &start,
		}

		assert.False(t, p.OccursOn(monday))
		assert.True(t, p.OccursOn(monday.AddDays(1)))
		assert.True(t, p.OccursOn(monday.AddDays(3)))
		assert.True(t, p.OccursOn(monday.AddDays(8)))
	})

	t.Run("biweekly skips the off week", func(t *testing.T) {
		start := monday
		p := Preset{Frequency: FrequencyWeekly, Interval: 2, StartDate: &start}

		assert.True(t, p.OccursOn(monday.AddDays(3)))
		assert.False(t, p.OccursOn(monday.AddDays(7)))
		assert.True(t, p.OccursOn(monday.AddDays(14)))
	})

	t.Run("monthly on the anchor day of month", func(t *testing.T) {
		start := date(2026, time.January, 15)
		p := Preset{Frequency: FrequencyMonthly, Interval: 1, StartDate: &start}

		assert.True(t, p.OccursOn(date(2026, time.February, 15)))
		assert.False(t, p.OccursOn(date(2026, time.February, 14)))
	})

	t.Run("until bound is inclusive", func(t *testing.T) {
		start := monday
		until := monday.AddDays(3)
		p := Preset{Frequency: FrequencyDaily, Interval: 1, StartDate: &start, UntilDate: &until}

		assert.True(t, p.OccursOn(until))
		assert.False(t, p.OccursOn(until.AddDays(1)))
	})
}

func TestPresetValidate(t *testing.T) {
	t.Run("deduplicates weekdays preserving order", func(t *testing.T) {
		p := Preset{
			Frequency: FrequencyWeekly,
			Interval:  1,
			ByWeekday: []Weekday{Thursday, Tuesday, Thursday},
		}
		require.NoError(t, p.Validate())
		assert.Equal(t, []Weekday{Thursday, Tuesday}, p.ByWeekday)
	})

	t.Run("rejects until before start", func(t *testing.T) {
		start := date(2026, time.March, 2)
		until := start.AddDays(-1)
		p := Preset{Frequency: FrequencyDaily, Interval: 1, StartDate: &start, UntilDate: &until}
		assert.ErrorIs(t, p.Validate(), ErrUntilBeforeStart)
	})

	t.Run("rejects zero interval", func(t *testing.T) {
		p := Preset{Frequency: FrequencyDaily}
		assert.ErrorIs(t, p.Validate(), ErrInvalidInterval)
	})
}

func TestWindowBounds(t *testing.T) {
	day := date(2026, time.March, 2)

	start, end := WindowMorning.Bounds(day)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), end)

	// Night rolls the end past midnight.
	start, end = WindowNight.Bounds(day)
	assert.Equal(t, time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), end)
}

func TestPresetJSONRoundTrip(t *testing.T) {
	start := date(2026, time.March, 2)
	ts, err := NewTimeOfDay(14, 30)
	require.NoError(t, err)
	te, err := NewTimeOfDay(15, 30)
	require.NoError(t, err)

	p := Preset{
		Frequency: FrequencyWeekly,
		Interval:  1,
		ByWeekday: []Weekday{Tuesday, Thursday},
		TimeStart: &ts,
		TimeEnd:   &te,
		StartDate: &start,
	}

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"time_start":"14:30"`)
	assert.Contains(t, string(raw), `"start_date":"2026-03-02"`)

	var back Preset
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, p, back)
}

func TestTimeBlockLifecycle(t *testing.T) {
	ts, err := NewTimeOfDay(14, 30)
	require.NoError(t, err)
	preset := Preset{
		Frequency: FrequencyWeekly,
		Interval:  1,
		ByWeekday: []Weekday{Tuesday},
		TimeStart: &ts,
	}

	b, err := NewTimeBlock(uuid.New(), "kids practice", preset)
	require.NoError(t, err)
	assert.Equal(t, TimeBlockPersisted, b.State())

	b.LinkCalendarEvent("evt_1")
	assert.Equal(t, TimeBlockPersistedWithEvent, b.State())

	b.SoftDelete(time.Now())
	assert.Equal(t, TimeBlockDeleted, b.State())
}

func TestNewTimeBlockValidation(t *testing.T) {
	ts, err := NewTimeOfDay(9, 0)
	require.NoError(t, err)

	_, err = NewTimeBlock(uuid.New(), "no start", Preset{Frequency: FrequencyDaily, Interval: 1})
	assert.ErrorIs(t, err, ErrMissingTimeStart)

	_, err = NewTimeBlock(uuid.New(), "no days", Preset{
		Frequency: FrequencyWeekly, Interval: 1, TimeStart: &ts,
	})
	assert.ErrorIs(t, err, ErrMissingByWeekday)
}
