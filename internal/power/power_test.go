package power_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joygram/flowOSD-sub000/internal/power"
)

type valueKey struct {
	setting uuid.UUID
	ac      bool
}

type fakeRegistration struct {
	name   string
	closed *[]string
}

func (r fakeRegistration) Close() error {
	*r.closed = append(*r.closed, r.name)
	return nil
}

type fakeAPI struct {
	scheme      uuid.UUID
	onAC        bool
	values      map[valueKey]uint32
	applied     int
	refuse      uuid.UUID
	refuseMode  bool
	registered  []string
	closed      []string
	effectiveFn func(uint32)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		scheme: uuid.MustParse("381b4222-f694-41f0-9685-ff5bb260df2e"),
		onAC:   true,
		values: map[valueKey]uint32{
			{power.SettingBoostMode, true}:  2,
			{power.SettingBoostMode, false}: 0,
		},
	}
}

func (f *fakeAPI) ActiveScheme() (uuid.UUID, error) { return f.scheme, nil }

func (f *fakeAPI) SetActiveScheme(s uuid.UUID) error {
	if s != f.scheme {
		return errors.New("unknown scheme")
	}
	f.applied++
	return nil
}

func (f *fakeAPI) ReadValueIndex(_, _, setting uuid.UUID, ac bool) (uint32, error) {
	v, ok := f.values[valueKey{setting, ac}]
	if !ok {
		return 0, errors.New("not found")
	}
	return v, nil
}

func (f *fakeAPI) WriteValueIndex(_, _, setting uuid.UUID, ac bool, value uint32) error {
	f.values[valueKey{setting, ac}] = value
	return nil
}

func (f *fakeAPI) OnAC() (bool, error) { return f.onAC, nil }

func (f *fakeAPI) RegisterSetting(setting uuid.UUID) (power.Registration, error) {
	if setting == f.refuse {
		return nil, errors.New("access denied")
	}
	name := setting.String()
	f.registered = append(f.registered, name)
	return fakeRegistration{name: name, closed: &f.closed}, nil
}

func (f *fakeAPI) RegisterEffectiveMode(fn func(uint32)) (power.Registration, error) {
	if f.refuseMode {
		return nil, errors.New("not available")
	}
	f.effectiveFn = fn
	f.registered = append(f.registered, "effective")
	return fakeRegistration{name: "effective", closed: &f.closed}, nil
}

func TestGUIDRoundTrip(t *testing.T) {
	raw := power.ToWindowsGUID(power.SettingACDCSource)
	// Data1 is stored little-endian.
	assert.Equal(t, []byte{0x59, 0x9a, 0x3e, 0x5d}, raw[:4])

	back, err := power.FromWindowsGUID(raw[:])
	require.NoError(t, err)
	assert.Equal(t, power.SettingACDCSource, back)
}

func TestDecodeSetting(t *testing.T) {
	s, err := power.DecodeSetting(power.EncodeSetting(power.SettingConsoleDisplayState, 2))
	require.NoError(t, err)
	assert.Equal(t, power.SettingConsoleDisplayState, s.ID)
	v, ok := s.Uint32()
	require.True(t, ok)
	assert.Equal(t, uint32(2), v)

	bad := power.EncodeSetting(power.SettingBoostMode, 1)
	bad[16] = 40
	_, err = power.DecodeSetting(bad)
	assert.Error(t, err)

	_, err = power.DecodeSetting([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewReadsInitialState(t *testing.T) {
	api := newFakeAPI()
	b, err := power.New(api, zerolog.Nop())
	require.NoError(t, err)

	src, _ := b.Source().Value()
	assert.Equal(t, power.SourceAC, src)
	boost, _ := b.Boost().Value()
	assert.True(t, boost)
	assert.Equal(t, api.scheme, b.Scheme())
	assert.Len(t, api.registered, 4)
}

func TestWritesFollowPowerSource(t *testing.T) {
	api := newFakeAPI()
	b, err := power.New(api, zerolog.Nop())
	require.NoError(t, err)

	b.HandleSetting(power.EncodeSetting(power.SettingACDCSource, uint32(power.SourceDC)))
	boost, _ := b.Boost().Value()
	assert.False(t, boost, "boost re-read for the DC value")

	require.NoError(t, b.SetBoost(true))
	assert.Equal(t, uint32(2), api.values[valueKey{power.SettingBoostMode, false}])
	assert.Equal(t, uint32(2), api.values[valueKey{power.SettingBoostMode, true}], "AC value untouched")
	assert.Equal(t, 1, api.applied)

	require.NoError(t, b.ToggleBoost())
	assert.Equal(t, uint32(0), api.values[valueKey{power.SettingBoostMode, false}])
	boost, _ = b.Boost().Value()
	assert.False(t, boost)
}

func TestEffectiveModeKeepsBatterySaverApart(t *testing.T) {
	api := newFakeAPI()
	b, err := power.New(api, zerolog.Nop())
	require.NoError(t, err)

	api.effectiveFn(2)
	mode, _ := b.Mode().Value()
	assert.Equal(t, power.ModeBalanced, mode)
	saver, _ := b.BatterySaver().Value()
	assert.False(t, saver)

	api.effectiveFn(0)
	mode, _ = b.Mode().Value()
	assert.Equal(t, power.ModeBalanced, mode, "battery saver leaves the mode alone")
	saver, _ = b.BatterySaver().Value()
	assert.True(t, saver)

	api.effectiveFn(4)
	mode, _ = b.Mode().Value()
	assert.Equal(t, power.ModeBestPerformance, mode)
	saver, _ = b.BatterySaver().Value()
	assert.False(t, saver)

	api.effectiveFn(5)
	mode, _ = b.Mode().Value()
	assert.Equal(t, power.ModeBestPerformance, mode)
}

func TestDisplayStateAndResume(t *testing.T) {
	b, err := power.New(newFakeAPI(), zerolog.Nop())
	require.NoError(t, err)

	b.HandleSetting(power.EncodeSetting(power.SettingConsoleDisplayState, 0))
	on, _ := b.DisplayOn().Value()
	assert.False(t, on)
	b.HandleSetting(power.EncodeSetting(power.SettingConsoleDisplayState, 2))
	on, _ = b.DisplayOn().Value()
	assert.True(t, on, "dimmed is still on")

	var resumes int
	b.Resumed().Subscribe(func(_ time.Time) { resumes++ })
	b.HandleBroadcast(power.PBTResumeAutomatic)
	b.HandleBroadcast(power.PBTSuspend)
	assert.Equal(t, 1, resumes)
}

func TestRefusedRegistrationFailsAndReleases(t *testing.T) {
	api := newFakeAPI()
	api.refuse = power.SettingConsoleDisplayState
	_, err := power.New(api, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, []string{power.SettingBoostMode.String(), power.SettingACDCSource.String()}, api.closed)

	api = newFakeAPI()
	api.refuseMode = true
	_, err = power.New(api, zerolog.Nop())
	require.Error(t, err)
	assert.Len(t, api.closed, 3)
}

func TestCloseUnregistersOnce(t *testing.T) {
	api := newFakeAPI()
	b, err := power.New(api, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"effective", power.SettingConsoleDisplayState.String(),
		power.SettingBoostMode.String(), power.SettingACDCSource.String()}, api.closed)
}
