package constants

const (
	DbBasePath      = "/var/lib/transferd"
	LogsBasePath    = "/var/log/transferd"
	RunLogsBasePath = LogsBasePath + "/transfers"
	LockFilePath    = "/run/transferd.lock"
	ConfigBasePath  = "/etc/transferd"

	// TransferWorkers is the pool size for each transfer-execution task
	// kind; single-shot maintenance kinds run with one worker.
	TransferWorkers = 2

	// DefaultTransferInterval is the scheduler cycle in minutes.
	DefaultTransferInterval = 5

	// MD5SummaryFilename and MD5SummaryMD5Filename are written at the
	// root of the cruise data directory by the checksum task.
	MD5SummaryFilename    = "MD5_Summary.txt"
	MD5SummaryMD5Filename = "MD5_Summary.md5"
)

// CoreVar keys for the singleton voyage context records.
const (
	VarCruiseID      = "cruiseID"
	VarLoweringID    = "loweringID"
	VarCruiseStart   = "cruiseStartDate"
	VarCruiseEnd     = "cruiseEndDate"
	VarLoweringStart = "loweringStartDate"
	VarLoweringEnd   = "loweringEndDate"
	VarSystemStatus  = "systemStatus"
)
