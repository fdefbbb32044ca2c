package aprs

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aprsgo/tncd/internal/geo"
)

var (
	reWeatherIndicator = regexp.MustCompile(`[csghpPb]\d{3}|t-?\d{1,3}|r\d{3}`)
	reWindUnderscore   = regexp.MustCompile(`_(\d{3})/(\d{3})`)
	reWindCompact      = regexp.MustCompile(`c(\d{3})s(\d{3})`)
	reGust             = regexp.MustCompile(`g(\d{3})`)
	reTemp             = regexp.MustCompile(`t(-?\d{1,3})`)
	reRain1h           = regexp.MustCompile(`r(\d{3})`)
	reRain24h          = regexp.MustCompile(`p(\d{3})`)
	reRainMidnight     = regexp.MustCompile(`P(\d{3})`)
	reHumidity         = regexp.MustCompile(`h(\d{2})`)
	rePressure         = regexp.MustCompile(`b(\d{5})`)
)

// decodeWeather handles `_` weather reports and weather data embedded
// in `!=/@` position reports, per §4.5. It returns ErrNotThisFormat if
// info carries no recognizable weather field.
func decodeWeather(station, info string, now time.Time) (*Weather, error) {
	if info == "" || !strings.ContainsRune("!=/@_", rune(info[0])) {
		return nil, ErrNotThisFormat
	}
	if !reWeatherIndicator.MatchString(info) {
		return nil, ErrNotThisFormat
	}

	wx := &Weather{Station: strings.ToUpper(station), Timestamp: now, Raw: info}

	if m := reWindUnderscore.FindStringSubmatch(info); m != nil {
		wx.WindDirection = atoiPtr(m[1])
		wx.WindSpeedMPH = atoiPtr(m[2])
	} else if m := reWindCompact.FindStringSubmatch(info); m != nil {
		wx.WindDirection = atoiPtr(m[1])
		wx.WindSpeedMPH = atoiPtr(m[2])
	}
	if m := reGust.FindStringSubmatch(info); m != nil {
		wx.WindGustMPH = atoiPtr(m[1])
	}
	if m := reTemp.FindStringSubmatch(info); m != nil {
		t, _ := strconv.Atoi(m[1])
		if t > 200 {
			t -= 256
		}
		wx.TemperatureF = &t
	}
	if m := reRain1h.FindStringSubmatch(info); m != nil {
		wx.Rain1hIn = hundredthsPtr(m[1])
	}
	if m := reRain24h.FindStringSubmatch(info); m != nil {
		wx.Rain24hIn = hundredthsPtr(m[1])
	}
	if m := reRainMidnight.FindStringSubmatch(info); m != nil {
		wx.RainSinceMidnight = hundredthsPtr(m[1])
	}
	if m := reHumidity.FindStringSubmatch(info); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h == 0 {
			h = 100
		}
		wx.Humidity = &h
	}
	if m := rePressure.FindStringSubmatch(info); m != nil {
		raw, _ := strconv.Atoi(m[1])
		if mb := float64(raw) / 10.0; mb >= 900 && mb <= 1100 {
			wx.PressureMbar = &mb
		} else if inhg := float64(raw) / 100.0; inhg >= 25 && inhg <= 32 {
			v := inhg * 33.8639
			wx.PressureMbar = &v
		}
	}

	if wx.TemperatureF != nil && wx.Humidity != nil {
		if dp, ok := geo.DewPointF(float64(*wx.TemperatureF), *wx.Humidity); ok {
			wx.DewPointF = &dp
		}
	}

	return wx, nil
}

func atoiPtr(s string) *int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func hundredthsPtr(s string) *float64 {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	f := float64(v) / 100.0
	return &f
}

// ApplyPressureTendency computes the 3-hour pressure trend by comparing
// current to a sample from ~3 hours ago (§4.5's supplemented weather
// history retention policy), tolerant of a 30-minute sampling gap.
func ApplyPressureTendency(current *Weather, threeHoursAgo *Weather) {
	if current.PressureMbar == nil || threeHoursAgo == nil || threeHoursAgo.PressureMbar == nil {
		return
	}
	age := current.Timestamp.Sub(threeHoursAgo.Timestamp)
	if age < 150*time.Minute || age > 210*time.Minute {
		return
	}
	change := *current.PressureMbar - *threeHoursAgo.PressureMbar
	current.PressureChange3h = &change
	switch {
	case change > 0.5:
		current.PressureTendency = "rising"
	case change < -0.5:
		current.PressureTendency = "falling"
	default:
		current.PressureTendency = "steady"
	}
}
