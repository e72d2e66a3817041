// Package rowparse extracts typed values from loosely-typed spreadsheet rows.
// Field names vary across upload sources, so every concept is resolved through an
// alias table against normalized header keys.
package rowparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Row is one loosely-typed upload row keyed by source column header.
type Row map[string]any

// aliases maps a concept to the header names it may appear under.
var aliases = map[string][]string{
	"order_id":         {"order_id", "order", "order_number", "service_order", "os"},
	"leg_number":       {"leg_number", "leg", "point", "stop_number"},
	"client_id":        {"client_id", "client", "customer_id", "customer"},
	"cost_center":      {"cost_center", "costcenter", "cc"},
	"professional_id":  {"professional_id", "professional", "courier_id", "courier"},
	"distance_km":      {"distance_km", "distance", "km"},
	"requested_at":     {"requested_at", "request_date", "requested", "solicited_at"},
	"allocated_at":     {"allocated_at", "allocation_date", "allocated", "accepted_at"},
	"finalized_at":     {"finalized_at", "finalization_date", "finalized", "completed_at"},
	"value":            {"value", "amount", "order_value", "price"},
	"payout":           {"professional_payout", "payout", "courier_value", "professional_value"},
	"duration_minutes": {"execution_minutes", "duration_minutes", "duration", "elapsed_minutes"},
	"occurrence":       {"occurrence", "occurrences", "observation", "notes"},
	"address":          {"address", "destination", "delivery_address"},
	"latitude":         {"latitude", "lat"},
	"longitude":        {"longitude", "lng", "lon"},
}

// daySerialEpoch is the spreadsheet day-serial epoch (1899-12-30).
var daySerialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// legMarkerPattern matches a "Point <n>" marker embedded in a free-text address.
var legMarkerPattern = regexp.MustCompile(`(?i)point\s*#?\s*(\d+)`)

// timestampLayouts are tried in order for textual timestamps.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// normalizeKey folds a source column header into canonical form.
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// lookup finds the first non-nil value for a concept through its alias table.
func (r Row) lookup(concept string) (any, bool) {
	names, ok := aliases[concept]
	if !ok {
		return nil, false
	}

	normalized := make(map[string]any, len(r))
	for key, value := range r {
		normalized[normalizeKey(key)] = value
	}

	for _, name := range names {
		if value, ok := normalized[name]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// OrderID extracts the positive integer order id. Returns false when the row has
// no usable order id.
func (r Row) OrderID() (int64, bool) {
	value, ok := r.lookup("order_id")
	if !ok {
		return 0, false
	}
	return ParseOrderID(value)
}

// ParseOrderID converts a cell value into a positive integer order id.
func ParseOrderID(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return int64(v), true
		}
	case int64:
		if v > 0 {
			return v, true
		}
	case float64:
		if v > 0 && v == math.Trunc(v) {
			return int64(v), true
		}
	case string:
		s := strings.TrimSpace(v)
		// Drop a trailing ".0" from spreadsheet exports of numeric cells.
		s = strings.TrimSuffix(s, ".0")
		id, err := strconv.ParseInt(s, 10, 64)
		if err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// LegNumber determines the leg number: an explicit field, else a "Point <n>"
// marker inside the address text, else 1.
func (r Row) LegNumber() int {
	if value, ok := r.lookup("leg_number"); ok {
		if n, ok := ParseOrderID(value); ok {
			return int(n)
		}
	}
	if address := r.String("address"); address != nil {
		if matches := legMarkerPattern.FindStringSubmatch(*address); len(matches) > 1 {
			if n, err := strconv.Atoi(matches[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// String extracts a trimmed string for a concept, nil when absent or empty.
func (r Row) String(concept string) *string {
	value, ok := r.lookup(concept)
	if !ok {
		return nil
	}
	var s string
	switch v := value.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			s = strconv.FormatInt(int64(v), 10)
		} else {
			s = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// Number extracts a numeric value for a concept, nil when absent or unparseable.
func (r Row) Number(concept string) *float64 {
	value, ok := r.lookup(concept)
	if !ok {
		return nil
	}
	return ParseNumber(value)
}

// ParseNumber converts a cell value into a float, tolerating comma decimal
// separators, currency symbols, and stray non-numeric characters.
func ParseNumber(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case string:
		return parseNumericText(v)
	}
	return nil
}

func parseNumericText(s string) *float64 {
	var cleaned strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			cleaned.WriteRune(r)
		case r == '-' && cleaned.Len() == 0:
			cleaned.WriteRune(r)
		}
	}

	text := cleaned.String()
	if text == "" || text == "-" {
		return nil
	}

	lastDot := strings.LastIndex(text, ".")
	lastComma := strings.LastIndex(text, ",")
	switch {
	case lastComma > lastDot:
		// Comma decimal separator, dots (if any) are thousands separators.
		text = strings.ReplaceAll(text, ".", "")
		text = strings.Replace(text, ",", ".", 1)
	case lastComma >= 0:
		// Dot decimal separator, commas are thousands separators.
		text = strings.ReplaceAll(text, ",", "")
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Timestamp extracts an instant for a concept, nil when absent or unparseable.
func (r Row) Timestamp(concept string) *time.Time {
	value, ok := r.lookup(concept)
	if !ok {
		return nil
	}
	return ParseTimestamp(value)
}

// ParseTimestamp converts a cell value into a UTC instant. Accepts day-serial
// numbers, slash-delimited day-first text, and normalized textual timestamps.
func ParseTimestamp(value any) *time.Time {
	switch v := value.(type) {
	case time.Time:
		utc := v.UTC()
		return &utc
	case float64:
		return fromDaySerial(v)
	case int:
		return fromDaySerial(float64(v))
	case int64:
		return fromDaySerial(float64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				utc := t.UTC()
				return &utc
			}
		}
		// A purely numeric cell exported as text is still a day serial.
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			return fromDaySerial(serial)
		}
	}
	return nil
}

// fromDaySerial converts a spreadsheet day-serial number (days since 1899-12-30,
// fractional part = time of day) into a UTC instant.
func fromDaySerial(serial float64) *time.Time {
	if serial <= 0 {
		return nil
	}
	days := math.Trunc(serial)
	frac := serial - days
	t := daySerialEpoch.AddDate(0, 0, int(days)).
		Add(time.Duration(math.Round(frac * 24 * float64(time.Hour))))
	return &t
}

// ParseDate parses a YYYY-MM-DD or DD/MM/YYYY date into a UTC midnight instant.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
