package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/loykin/daemonctl/internal/daemon"
)

// decodeWorkers decodes the pid-keyed worker mapping, keeping the order of
// the keys as they appear in the reply.
func decodeWorkers(raw json.RawMessage) ([]daemon.WorkerRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: worker info: %v", daemon.ErrMalformedResponse, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: worker info must be an object", daemon.ErrMalformedResponse)
	}

	records := make([]daemon.WorkerRecord, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: worker info: %v", daemon.ErrMalformedResponse, err)
		}
		key, _ := tok.(string)
		pid, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: worker pid %q: %v", daemon.ErrMalformedResponse, key, err)
		}
		var e workerEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("%w: worker %d: %v", daemon.ErrMalformedResponse, pid, err)
		}
		if e.Mem == nil || e.CPU == nil || e.CreateTime == nil {
			return nil, fmt.Errorf("%w: worker %d requires mem, cpu and create_time", daemon.ErrMalformedResponse, pid)
		}
		records = append(records, daemon.WorkerRecord{
			PID:        pid,
			MemPercent: *e.Mem,
			CPUPercent: *e.CPU,
			StartedAt:  unixFloat(*e.CreateTime),
		})
	}
	return records, nil
}

// unixFloat converts fractional epoch seconds to a UTC time.
func unixFloat(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

func urlPath(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Path
}
