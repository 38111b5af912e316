package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/davidahmann/partnergate/pkg/types"
)

// Partners name the same concept differently; the first non-empty alias wins.
var (
	dateAliases      = []string{"date", "period", "survey_date"}
	indicatorAliases = []string{"indicator_code", "indicator"}
	valueAliases     = []string{"value", "amount_yer", "value_usd", "price_yer"}
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006",
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func firstPresent(rec types.Record, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := rec[key]; ok && !isEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

func scalarString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value), true
	case json.Number:
		return value.String(), true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(value), true
	default:
		return "", false
	}
}

func numericValue(v any) (float64, bool) {
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int64:
		f = float64(value)
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarDay is the day as written; an offset in the input is not shifted to UTC.
func calendarDay(t time.Time) string {
	return t.Format("2006-01-02")
}

func parseBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return true
	case string:
		return value == "true" || value == "false"
	default:
		return false
	}
}

func parseGeo(v any) bool {
	switch value := v.(type) {
	case string:
		parts := strings.Split(value, ",")
		if len(parts) != 2 {
			return false
		}
		lat, ok1 := numericValue(parts[0])
		lon, ok2 := numericValue(parts[1])
		return ok1 && ok2 && validLatLon(lat, lon)
	case map[string]any:
		lat, ok1 := numericValue(value["lat"])
		lonRaw, has := value["lon"]
		if !has {
			lonRaw = value["lng"]
		}
		lon, ok2 := numericValue(lonRaw)
		return ok1 && ok2 && validLatLon(lat, lon)
	default:
		return false
	}
}

func validLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// NormalizeIndicator trims and NFC-normalizes an indicator code so
// visually identical codes compare equal.
func NormalizeIndicator(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// recordView is the alias-resolved view of one record that Layers 2 and 3 share.
type recordView struct {
	index     int
	rawDate   string
	date      time.Time
	hasDate   bool
	indicator string
	value     float64
	hasValue  bool
}

func resolve(records []types.Record) []recordView {
	out := make([]recordView, len(records))
	for i, rec := range records {
		view := recordView{index: i}
		if v, ok := firstPresent(rec, dateAliases); ok {
			view.rawDate, _ = scalarString(v)
			view.date, view.hasDate = parseDate(v)
		}
		if v, ok := firstPresent(rec, indicatorAliases); ok {
			s, _ := scalarString(v)
			view.indicator = NormalizeIndicator(s)
		}
		if v, ok := firstPresent(rec, valueAliases); ok {
			view.value, view.hasValue = numericValue(v)
		}
		out[i] = view
	}
	return out
}
