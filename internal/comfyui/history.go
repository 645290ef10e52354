package comfyui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
)

// executionMessageLimit bounds the exception text kept from an execution error
const executionMessageLimit = 80

type historyEntry struct {
	Status struct {
		StatusStr string            `json:"status_str"`
		Completed bool              `json:"completed"`
		Messages  []json.RawMessage `json:"messages"`
	} `json:"status"`
	Outputs map[string]nodeOutput `json:"outputs"`
}

type nodeOutput struct {
	Images []imageRef `json:"images"`
}

type imageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type executionError struct {
	ExceptionMessage string `json:"exception_message"`
	ExceptionType    string `json:"exception_type"`
	NodeID           string `json:"node_id"`
}

// Classify interprets a /history/{id} response body for promptID
func Classify(promptID string, body []byte) domain.Status {
	var history map[string]historyEntry
	if err := json.Unmarshal(body, &history); err != nil {
		return domain.Pending(fmt.Errorf("decode history: %w", err))
	}

	entry, ok := history[promptID]
	if !ok {
		return domain.Status{State: domain.StatePending}
	}

	if entry.Status.StatusStr == "error" {
		return domain.Status{State: domain.StateError, Message: executionMessage(entry.Status.Messages)}
	}

	for _, node := range sortedNodeIDs(entry.Outputs) {
		images := entry.Outputs[node].Images
		if len(images) > 0 {
			return domain.Status{State: domain.StateDone, Output: images[0].Filename}
		}
	}

	return domain.Status{State: domain.StateRunning}
}

// executionMessage extracts the first execution_error text, falling back to "error"
func executionMessage(messages []json.RawMessage) string {
	for _, raw := range messages {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
			continue
		}
		var kind string
		if err := json.Unmarshal(pair[0], &kind); err != nil || kind != "execution_error" {
			continue
		}
		var detail executionError
		if err := json.Unmarshal(pair[1], &detail); err != nil {
			continue
		}
		return "error: " + domain.Truncate(detail.ExceptionMessage, executionMessageLimit)
	}
	return "error"
}

// sortedNodeIDs orders node ids numerically when both are numbers, else lexically
func sortedNodeIDs(outputs map[string]nodeOutput) []string {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
