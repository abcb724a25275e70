package config

const (
	defaultConfigPath     = "~/.config/seriesd/config.toml"
	defaultSourceDir      = "~/incoming"
	defaultDestDir        = "~/series"
	defaultStateDir       = "~/.local/share/seriesd"
	defaultLogDir         = "~/.local/share/seriesd/logs"
	defaultIdleTimeout    = 10.0
	defaultDICOMKeyFormat = "{{.StudyDate}}-{{.StudyID}}-{{.SeriesNumber}}"
	defaultDirKeyFormat   = "{{.Directory}}"
	defaultDrainTimeout   = 600
	defaultSettleSeconds  = 1.0
	defaultFTPPort        = 21
	defaultFTPUser        = "anonymous"
	defaultFTPTimeout     = 30
	defaultFTPUploadRate  = 20.0
	defaultFTPBurst       = 5
	defaultHistoryPath    = "~/.local/share/seriesd/history.db"
	defaultAPIBind        = "127.0.0.1:7491"
	defaultLogFormat      = "auto"
	defaultLogLevel       = "info"
)

// Decoder kinds.
const (
	DecoderDICOM     = "dicom"
	DecoderDirectory = "directory"
)

// Source modes.
const (
	ModeWatch = "watch"
	ModeWalk  = "walk"
)

// Pipeline kinds.
const (
	PipelineLog  = "log"
	PipelineCopy = "copy"
	PipelineSort = "sort"
	PipelineFTP  = "ftp"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir: defaultSourceDir,
			DestDir:   defaultDestDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Series: Series{
			IdleTimeout:  defaultIdleTimeout,
			Decoder:      DecoderDICOM,
			DrainTimeout: defaultDrainTimeout,
		},
		Source: Source{
			Mode:          ModeWatch,
			SettleSeconds: defaultSettleSeconds,
		},
		Pipeline: Pipeline{
			Kind: PipelineLog,
		},
		FTP: FTP{
			Port:             defaultFTPPort,
			User:             defaultFTPUser,
			TimeoutSeconds:   defaultFTPTimeout,
			UploadsPerSecond: defaultFTPUploadRate,
			Burst:            defaultFTPBurst,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
