package types

// TaskKind names one registered unit of dispatchable work. Kinds are a
// closed set validated at boot; an unknown kind is rejected at submit
// time rather than failing inside a worker.
type TaskKind string

const (
	TaskRunCollectionSystemTransfer TaskKind = "runCollectionSystemTransfer"
	TaskRunCruiseDataTransfer       TaskKind = "runCruiseDataTransfer"
	TaskRunShipToShoreTransfer      TaskKind = "runShipToShoreTransfer"
	TaskTestTransfer                TaskKind = "testTransfer"
	TaskUpdateDataDashboard         TaskKind = "updateDataDashboard"
	TaskUpdateMD5Summary            TaskKind = "updateMD5Summary"
	TaskRebuildCruiseDirectory      TaskKind = "rebuildCruiseDirectory"
	TaskRefreshUsageStats           TaskKind = "refreshUsageStats"
)

// RunTaskFor maps a transfer category to the task kind that executes it.
func RunTaskFor(category TransferCategory) (TaskKind, bool) {
	switch category {
	case CategoryCollectionSystem:
		return TaskRunCollectionSystemTransfer, true
	case CategoryCruiseData:
		return TaskRunCruiseDataTransfer, true
	case CategoryShipToShore:
		return TaskRunShipToShoreTransfer, true
	}
	return "", false
}

// SubmitMode selects whether the caller waits for the worker's result.
type SubmitMode string

const (
	ModeBackground  SubmitMode = "background"
	ModeSynchronous SubmitMode = "synchronous"
)

// Job is one in-flight unit of dispatched work.
type Job struct {
	Handle     string     `json:"handle"`
	Task       TaskKind   `json:"task"`
	TransferID string     `json:"transferId,omitempty"`
	Mode       SubmitMode `json:"mode"`
	PID        int        `json:"pid,omitempty"`
}
