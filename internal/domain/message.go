package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RawRequest is an undecoded run request from the source topic.
type RawRequest struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseRunRequest decodes a raw message into a run request. The message key
// becomes the run ID when the body has none.
func ParseRunRequest(raw RawRequest) (RunRequest, error) {
	var req RunRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return RunRequest{}, fmt.Errorf("unmarshal run request: %w", err)
	}
	if req.ID == "" && len(raw.Key) > 0 {
		req.ID = string(raw.Key)
	}
	return req, nil
}
