package config

import "strings"

// Target selects which stage the generic destination and replace options
// apply to.
type Target int

const (
	// TargetTranscode routes destination/replace to the transcode stage.
	TargetTranscode Target = iota
	// TargetDecrypt routes destination/replace to the decrypt stage.
	TargetDecrypt
)

// Overrides holds the recognised job options. Job files decode into it
// directly and CLI flags populate the same fields. Empty strings and nil
// pointers leave the loaded configuration untouched.
type Overrides struct {
	Hostname          string `yaml:"hostname"`
	MAK               string `yaml:"mak"`
	Title             string `yaml:"title"`
	Episode           string `yaml:"episode"`
	DestDir           string `yaml:"dest_dir"`
	TVDBAPIKey        string `yaml:"tvdb_api_key"`
	TVDBUserKey       string `yaml:"tvdb_user_key"`
	TVDBUsername      string `yaml:"tvdb_username"`
	TVDBIgnoreFailure *bool  `yaml:"tvdb_ignore_failure"`
	SkipIfInPath      string `yaml:"skip_if_in_path"`
	TivoDecoderPath   string `yaml:"tivo_decoder_path"`
	Source            string `yaml:"source"`
	Destination       string `yaml:"destination"`
	Replace           *bool  `yaml:"replace"`
	VideoCodec        string `yaml:"video_codec"`
	VideoQuality      string `yaml:"video_quality"`
	AudioCodec        string `yaml:"audio_codec"`
	AudioQuality      string `yaml:"audio_quality"`
	CompressionSpeed  string `yaml:"compression_speed"`
	ComskipPath       string `yaml:"comskip_path"`
	ComskipINI        string `yaml:"comskip_ini"`
}

// Apply returns a copy of c with the overrides applied and normalized. The
// receiver is not modified so one loaded config can serve many jobs.
func (c Config) Apply(o Overrides, target Target) (*Config, error) {
	out := c
	set := func(dst *string, value string) {
		if v := strings.TrimSpace(value); v != "" {
			*dst = v
		}
	}
	set(&out.Device.Hostname, o.Hostname)
	set(&out.Device.MAK, o.MAK)
	set(&out.Paths.DestDir, o.DestDir)
	set(&out.Paths.SkipIfInPath, o.SkipIfInPath)
	set(&out.TVDB.APIKey, o.TVDBAPIKey)
	set(&out.TVDB.UserKey, o.TVDBUserKey)
	set(&out.TVDB.Username, o.TVDBUsername)
	if o.TVDBIgnoreFailure != nil {
		out.TVDB.IgnoreFailure = *o.TVDBIgnoreFailure
	}
	set(&out.Decrypt.TivoDecoderPath, o.TivoDecoderPath)
	set(&out.Transcode.VideoCodec, o.VideoCodec)
	set(&out.Transcode.VideoQuality, o.VideoQuality)
	set(&out.Transcode.AudioCodec, o.AudioCodec)
	set(&out.Transcode.AudioQuality, o.AudioQuality)
	set(&out.Transcode.CompressionSpeed, o.CompressionSpeed)
	set(&out.Comskip.Path, o.ComskipPath)
	set(&out.Comskip.INI, o.ComskipINI)

	switch target {
	case TargetDecrypt:
		set(&out.Decrypt.Destination, o.Destination)
		if o.Replace != nil {
			out.Decrypt.Replace = *o.Replace
		}
	default:
		set(&out.Transcode.Destination, o.Destination)
		if o.Replace != nil {
			out.Transcode.Replace = *o.Replace
		}
		if out.Transcode.Engine == "" && (o.VideoCodec != "" || o.AudioCodec != "") {
			out.Transcode.Engine = EngineFFmpeg
		}
	}

	if err := out.normalize(); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
