package storage

import (
	"encoding/json"
	"fmt"
	"os"
)

// Progress is the snapshot written after every batch.
type Progress struct {
	BatchNum     int     `json:"batch_num"`
	TotalBatches int     `json:"total_batches"`
	Total        int     `json:"total"`
	Found        int     `json:"found"`
	WorkTime     float64 `json:"work_time"` // minutes since start
}

func SaveProgress(filename string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := writeFileAtomic(filename, data); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}
	return nil
}

func LoadProgress(filename string) (Progress, error) {
	var p Progress
	data, err := os.ReadFile(filename)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode progress: %w", err)
	}
	return p, nil
}
