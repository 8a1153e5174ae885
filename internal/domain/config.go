// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

type Config struct {
	Version string `toml:"-" mapstructure:"-"`

	RPCURL         string `toml:"rpcUrl" mapstructure:"rpcUrl"`
	RPCUser        string `toml:"rpcUser" mapstructure:"rpcUser"`
	RPCPass        string `toml:"rpcPass" mapstructure:"rpcPass"`
	RPCTimeout     int    `toml:"rpcTimeout" mapstructure:"rpcTimeout"`
	ForceNotRemote bool   `toml:"forceNotRemote" mapstructure:"forceNotRemote"`

	BaseDir            string   `toml:"baseDir" mapstructure:"baseDir"`
	DlDirs             []string `toml:"dlDirs" mapstructure:"dlDirs"`
	DestinationDirs    []string `toml:"destinationDirs" mapstructure:"destinationDirs"`
	DefaultDestination string   `toml:"defaultDestination" mapstructure:"defaultDestination"`
	Verify             bool     `toml:"verify" mapstructure:"verify"`
	AskExisting        bool     `toml:"askExisting" mapstructure:"askExisting"`
	CopyDir            string   `toml:"copyDir" mapstructure:"copyDir"`
	WatchDir           string   `toml:"watchDir" mapstructure:"watchDir"`
	MoveCommand        string   `toml:"moveCommand" mapstructure:"moveCommand"`

	SqliteDB bool   `toml:"sqliteDb" mapstructure:"sqliteDb"`
	DataDir  string `toml:"dataDir" mapstructure:"dataDir"`

	QuotaPerDlDir       string `toml:"quotaPerDlDir" mapstructure:"quotaPerDlDir"`
	FreeSpacePerDlDir   string `toml:"freeSpacePerDlDir" mapstructure:"freeSpacePerDlDir"`
	DstFreeSpaceToLeave string `toml:"dstFreeSpaceToLeave" mapstructure:"dstFreeSpaceToLeave"`
	MagnetSizeEstimate  string `toml:"magnetSizeEstimate" mapstructure:"magnetSizeEstimate"`

	// Limits holds the parsed byte sizes above.
	Limits Limits `toml:"-" mapstructure:"-"`

	MetricsTextfile string `toml:"metricsTextfile" mapstructure:"metricsTextfile"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	Color         string `toml:"color" mapstructure:"color"`
}

// Limits are byte quantities in their parsed form.
type Limits struct {
	QuotaPerDlDir       uint64
	FreeSpacePerDlDir   uint64
	DstFreeSpaceToLeave uint64
	MagnetSizeEstimate  uint64
}
