package transit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a POSIX time in seconds. Feeds encode it several ways: a JSON
// number, a numeric string, an RFC 3339 string, or a protobuf.js Long object
// ({"low": .., "high": .., "unsigned": ..}); all decode to the same value.
type Timestamp int64

func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(t), 10)), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	switch b[0] {
	case '{':
		var long struct {
			Low      json.RawMessage `json:"low"`
			High     json.RawMessage `json:"high"`
			Unsigned bool            `json:"unsigned"`
		}
		if err := json.Unmarshal(b, &long); err != nil {
			return fmt.Errorf("timestamp object: %w", err)
		}
		var low, high Timestamp
		if err := low.UnmarshalJSON(long.Low); err != nil {
			return err
		}
		if err := high.UnmarshalJSON(long.High); err != nil {
			return err
		}
		// low is the signed bit pattern of the lower word
		if high == 0 && low >= 0 {
			*t = low
			return nil
		}
		*t = Timestamp(int64(high)<<32 | int64(uint32(low)))
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return t.parseString(s)
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("timestamp %s: %w", b, err)
		}
		*t = Timestamp(int64(f))
		return nil
	}
}

func (t *Timestamp) parseString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*t = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = Timestamp(n)
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*t = Timestamp(ts.Unix())
	return nil
}
