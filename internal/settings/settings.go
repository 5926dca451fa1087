// Package settings holds the persisted application settings document and a
// service that exposes whole-document and dotted key-path access with
// debounced writes to config.json.
package settings

// AppSettings is the document persisted as config.json. Field names follow
// the UI contract, so tags are camelCase unlike the rest of the API.
type AppSettings struct {
	General    GeneralSettings    `json:"general"`
	Download   DownloadSettings   `json:"download"`
	Editor     EditorSettings     `json:"editor"`
	Appearance AppearanceSettings `json:"appearance"`
	Advanced   AdvancedSettings   `json:"advanced"`
}

type GeneralSettings struct {
	Language           string `json:"language"`
	LaunchOnStartup    bool   `json:"launchOnStartup"`
	MinimizeToTray     bool   `json:"minimizeToTray"`
	CloseToTray        bool   `json:"closeToTray"`
	CheckForUpdates    bool   `json:"checkForUpdates"`
	AutoUpdateBinaries bool   `json:"autoUpdateBinaries"`
}

type DownloadSettings struct {
	DownloadPath            string   `json:"downloadPath"`
	DefaultQuality          string   `json:"defaultQuality"`
	DefaultFormat           string   `json:"defaultFormat"`
	MaxConcurrentDownloads  int      `json:"maxConcurrentDownloads"`
	CreateChannelSubfolder  bool     `json:"createChannelSubfolder"`
	IncludeDateInFilename   bool     `json:"includeDateInFilename"`
	EmbedThumbnail          bool     `json:"embedThumbnail"`
	EmbedMetadata           bool     `json:"embedMetadata"`
	AutoRetry               bool     `json:"autoRetry"`
	RetryAttempts           int      `json:"retryAttempts"`
	FilenameTemplate        string   `json:"filenameTemplate"`
	AudioFormat             string   `json:"audioFormat"`
	AudioBitrate            string   `json:"audioBitrate"`
	AudioCodec              string   `json:"audioCodec"`
	VideoCodec              string   `json:"videoCodec"`
	CRFQuality              int      `json:"crfQuality"`
	EncodingPreset          string   `json:"encodingPreset"`
	DownloadSubtitles       bool     `json:"downloadSubtitles"`
	AutoSubtitles           bool     `json:"autoSubtitles"`
	EmbedSubtitles          bool     `json:"embedSubtitles"`
	SubtitleFormat          string   `json:"subtitleFormat"`
	SubtitleLanguage        string   `json:"subtitleLanguage"`
	SponsorBlock            bool     `json:"sponsorBlock"`
	SponsorBlockCategories  []string `json:"sponsorBlockCategories"`
	DownloadChapters        bool     `json:"downloadChapters"`
	SplitByChapters         bool     `json:"splitByChapters"`
	PlaylistStart           int      `json:"playlistStart"`
	PlaylistEnd             int      `json:"playlistEnd"`
	PlaylistItems           string   `json:"playlistItems"`
	RateLimit               string   `json:"rateLimit"`
	ConcurrentFragments     int      `json:"concurrentFragments"`
	CookiesFromBrowser      string   `json:"cookiesFromBrowser"`
	RestrictFilenames       bool     `json:"restrictFilenames"`
	UseDownloadArchive      bool     `json:"useDownloadArchive"`
	WriteInfoJSON           bool     `json:"writeInfoJson"`
	WriteDescription        bool     `json:"writeDescription"`
	WriteThumbnail          bool     `json:"writeThumbnail"`
	GeoBypass               bool     `json:"geoBypass"`
}

type EditorSettings struct {
	DefaultProjectWidth       int     `json:"defaultProjectWidth"`
	DefaultProjectHeight      int     `json:"defaultProjectHeight"`
	DefaultProjectFPS         int     `json:"defaultProjectFps"`
	AutoSave                  bool    `json:"autoSave"`
	AutoSaveInterval          int     `json:"autoSaveInterval"`
	ShowWaveforms             bool    `json:"showWaveforms"`
	SnapToClips               bool    `json:"snapToClips"`
	SnapToPlayhead            bool    `json:"snapToPlayhead"`
	DefaultTransitionDuration float64 `json:"defaultTransitionDuration"`
}

type AppearanceSettings struct {
	Theme         string `json:"theme"`
	AccentColor   string `json:"accentColor"`
	FontSize      string `json:"fontSize"`
	ReducedMotion bool   `json:"reducedMotion"`
}

type AdvancedSettings struct {
	FFmpegPath               string `json:"ffmpegPath"`
	YtdlpPath                string `json:"ytdlpPath"`
	TempPath                 string `json:"tempPath"`
	CachePath                string `json:"cachePath"`
	MaxCacheSizeMB           int64  `json:"maxCacheSize"`
	HardwareAcceleration     bool   `json:"hardwareAcceleration"`
	HardwareAccelerationType string `json:"hardwareAccelerationType"`
	DebugMode                bool   `json:"debugMode"`
	ProxyURL                 string `json:"proxyUrl"`
}

func Defaults() AppSettings {
	return AppSettings{
		General: GeneralSettings{
			Language:           "en",
			LaunchOnStartup:    false,
			MinimizeToTray:     true,
			CloseToTray:        true,
			CheckForUpdates:    true,
			AutoUpdateBinaries: true,
		},
		Download: DownloadSettings{
			DefaultQuality:         "1080",
			DefaultFormat:          "mp4",
			MaxConcurrentDownloads: 3,
			EmbedThumbnail:         true,
			EmbedMetadata:          true,
			AutoRetry:              true,
			RetryAttempts:          3,
			FilenameTemplate:       "%(title)s.%(ext)s",
			AudioFormat:            "m4a",
			AudioBitrate:           "192",
			AudioCodec:             "auto",
			VideoCodec:             "auto",
			CRFQuality:             23,
			EncodingPreset:         "medium",
			SubtitleFormat:         "srt",
			SubtitleLanguage:       "en",
			SponsorBlockCategories: []string{"sponsor"},
			ConcurrentFragments:    1,
		},
		Editor: EditorSettings{
			DefaultProjectWidth:       1920,
			DefaultProjectHeight:      1080,
			DefaultProjectFPS:         30,
			AutoSave:                  true,
			AutoSaveInterval:          60,
			ShowWaveforms:             true,
			SnapToClips:               true,
			SnapToPlayhead:            true,
			DefaultTransitionDuration: 0.5,
		},
		Appearance: AppearanceSettings{
			Theme:       "system",
			AccentColor: "#3b82f6",
			FontSize:    "medium",
		},
		Advanced: AdvancedSettings{
			MaxCacheSizeMB:           500,
			HardwareAcceleration:     true,
			HardwareAccelerationType: "auto",
		},
	}
}
