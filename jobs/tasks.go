package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRestoreBatch restores one batch of legacy inventory records.
	TaskRestoreBatch = "restore:batch"
	// TaskBranchesSync creates branches referenced by inventory but missing.
	TaskBranchesSync = "branches:sync"
)

// RestoreBatchPayload carries one batch of a backup through the queue.
type RestoreBatchPayload struct {
	Records        []restore.LegacyRecord `json:"records"`
	OverrideBranch string                 `json:"overrideBranch,omitempty"`
	// Source names the backup file for logs and metrics.
	Source string `json:"source,omitempty"`
}

// NewRestoreBatchTask constructs an Asynq task for one restore batch.
func NewRestoreBatchTask(payload RestoreBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRestoreBatch, body, asynq.Queue(QueueDefault)), nil
}

// NewBranchesSyncTask constructs an Asynq task for branch synchronization.
func NewBranchesSyncTask() *asynq.Task {
	return asynq.NewTask(TaskBranchesSync, nil, asynq.Queue(QueueDefault))
}
