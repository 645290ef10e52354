package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/api/storage"
	"github.com/google/uuid"
)

func DecodeBatchCursor(cursorStr string) (*storage.BatchCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	nanos, batchID, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, fmt.Errorf("invalid cursor format")
	}

	createdAt, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	if _, err := uuid.Parse(batchID); err != nil {
		return nil, fmt.Errorf("invalid batch_id in cursor: %w", err)
	}

	return &storage.BatchCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		BatchID:   batchID,
	}, nil
}

func EncodeBatchCursor(cursor *storage.BatchCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.BatchID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
