package types

// TransferCategory partitions transfer definitions by what they move.
type TransferCategory string

const (
	CategoryCollectionSystem TransferCategory = "collection_system"
	CategoryCruiseData       TransferCategory = "cruise_data"
	CategoryShipToShore      TransferCategory = "ship_to_shore"
)

func (c TransferCategory) Valid() bool {
	switch c {
	case CategoryCollectionSystem, CategoryCruiseData, CategoryShipToShore:
		return true
	}
	return false
}

// TransferScope selects whether a collection system transfer follows the
// cruise as a whole or the currently active lowering.
type TransferScope string

const (
	ScopeCruise   TransferScope = "cruise"
	ScopeLowering TransferScope = "lowering"
)

func (s TransferScope) Valid() bool {
	return s == ScopeCruise || s == ScopeLowering
}

// TransferType names the protocol used to reach the source or
// destination of a transfer.
type TransferType string

const (
	TransferLocalDir    TransferType = "local"
	TransferRsyncServer TransferType = "rsync"
	TransferSmbShare    TransferType = "smb"
	TransferSshServer   TransferType = "ssh"
	TransferNfsShare    TransferType = "nfs"
	TransferS3Bucket    TransferType = "s3"
)

func (t TransferType) Valid() bool {
	switch t {
	case TransferLocalDir, TransferRsyncServer, TransferSmbShare,
		TransferSshServer, TransferNfsShare, TransferS3Bucket:
		return true
	}
	return false
}

// TransferStatus is the live scheduling state of a definition.
type TransferStatus string

const (
	StatusIdle     TransferStatus = "idle"
	StatusQueued   TransferStatus = "queued"
	StatusStarting TransferStatus = "starting"
	StatusRunning  TransferStatus = "running"
	StatusStopping TransferStatus = "stopping"
	StatusError    TransferStatus = "error"
)

// Startable reports whether a new run may begin from this status.
func (s TransferStatus) Startable() bool {
	return s == StatusIdle || s == StatusError
}

// Active reports whether a process is expected to own this definition.
func (s TransferStatus) Active() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

// TransferDefinition is one persisted, recurring transfer: protocol
// endpoint, path templates, filters, policy flags, and live state.
type TransferDefinition struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	LongName string           `json:"longName"`
	Category TransferCategory `json:"category"`
	Scope    TransferScope    `json:"cruiseOrLowering,omitempty"`

	TransferType TransferType `json:"transferType"`
	Server       string       `json:"server,omitempty"`
	User         string       `json:"user,omitempty"`
	Password     string       `json:"password,omitempty"`
	UseSSHKey    bool         `json:"useSSHKey,omitempty"`
	SSHKeyFile   string       `json:"sshKeyFile,omitempty"`
	Domain       string       `json:"domain,omitempty"`
	Share        string       `json:"share,omitempty"`
	Bucket       string       `json:"bucket,omitempty"`
	Region       string       `json:"region,omitempty"`

	SourceDir string `json:"sourceDir"`
	DestDir   string `json:"destDir"`

	IncludeFilter string `json:"includeFilter,omitempty"`
	ExcludeFilter string `json:"excludeFilter,omitempty"`
	IgnoreFilter  string `json:"ignoreFilter,omitempty"`
	// Staleness is the number of seconds a file must be unmodified
	// before it is considered closed by its instrument. 0 disables.
	Staleness int `json:"staleness,omitempty"`

	RemoveSourceFiles    bool `json:"removeSourceFiles,omitempty"`
	SkipEmptyDirs        bool `json:"skipEmptyDirs,omitempty"`
	SkipEmptyFiles       bool `json:"skipEmptyFiles,omitempty"`
	SyncToDest           bool `json:"syncToDest,omitempty"`
	SyncFromSource       bool `json:"syncFromSource,omitempty"`
	UseStartDate         bool `json:"useStartDate,omitempty"`
	LocalDirIsMountPoint bool `json:"localDirIsMountPoint,omitempty"`
	IncludeSystemFiles   bool `json:"includeSystemFiles,omitempty"`
	// BandwidthLimit caps the transfer in kB/s. 0 means unlimited.
	BandwidthLimit int `json:"bandwidthLimit,omitempty"`
	// Priority orders ship-to-shore pushes; 1 is highest.
	Priority int `json:"priority,omitempty"`

	ExcludedCollectionSystems []string `json:"excludedCollectionSystems,omitempty"`
	ExcludedExtraDirectories  []string `json:"excludedExtraDirectories,omitempty"`

	Enable bool           `json:"enable"`
	Status TransferStatus `json:"status"`
	PID    int            `json:"pid,omitempty"`

	LastRunStart  int64 `json:"lastRunStart,omitempty"`
	LastRunFinish int64 `json:"lastRunFinish,omitempty"`
	LastRunBytes  int64 `json:"lastRunBytes,omitempty"`
	LastRunFiles  int64 `json:"lastRunFiles,omitempty"`
}
