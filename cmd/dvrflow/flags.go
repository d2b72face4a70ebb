package main

import (
	"github.com/spf13/cobra"

	"dvrflow/internal/config"
)

// overrideFlags binds job options to command flags. Boolean options are
// only applied when the flag was given so the config file value survives.
type overrideFlags struct {
	values            config.Overrides
	replace           bool
	tvdbIgnoreFailure bool
}

type flagGroup int

const (
	groupDevice flagGroup = 1 << iota
	groupSource
	groupDecrypt
	groupMetadata
	groupDetect
	groupTranscode
)

func bindOverrideFlags(cmd *cobra.Command, groups flagGroup) *overrideFlags {
	f := &overrideFlags{}
	flags := cmd.Flags()
	flags.SetNormalizeFunc(optionNameNormalizer)
	v := &f.values

	if groups&groupDevice != 0 {
		flags.StringVar(&v.Hostname, "hostname", "", "DVR hostname or address")
		flags.StringVar(&v.Title, "title", "", "Exact show title to fetch")
		flags.StringVar(&v.Episode, "episode", "", "Exact episode title to fetch")
		flags.StringVar(&v.DestDir, "dest-dir", "", "Directory downloads are written to")
	}
	if groups&(groupDevice|groupDecrypt) != 0 {
		flags.StringVar(&v.MAK, "mak", "", "Media access key (defaults to TIVO_MAK)")
	}
	if groups&groupSource != 0 {
		flags.StringVar(&v.Source, "source", "", "Recording file or directory to process")
	}
	if groups&groupDecrypt != 0 {
		flags.StringVar(&v.TivoDecoderPath, "tivo-decoder-path", "", "Path to the TivoDecoder jar")
	}
	if groups&groupSource != 0 {
		flags.StringVar(&v.Destination, "destination", "", "Output directory or file for the final artifact")
		flags.BoolVar(&f.replace, "replace", false, "Delete inputs once the output is verified")
	}
	if groups&groupMetadata != 0 {
		flags.StringVar(&v.TVDBAPIKey, "tvdb-api-key", "", "TVDB API key")
		flags.StringVar(&v.TVDBUserKey, "tvdb-user-key", "", "TVDB user key")
		flags.StringVar(&v.TVDBUsername, "tvdb-username", "", "TVDB username")
		flags.BoolVar(&f.tvdbIgnoreFailure, "tvdb-ignore-failure", false, "Continue without episode numbers when lookup fails")
		flags.StringVar(&v.SkipIfInPath, "skip-if-in-path", "", "Skip recordings whose canonical name already exists here")
	}
	if groups&groupDetect != 0 {
		flags.StringVar(&v.ComskipPath, "comskip-path", "", "Comskip binary; enables commercial detection")
		flags.StringVar(&v.ComskipINI, "comskip-ini", "", "Comskip ini file")
	}
	if groups&groupTranscode != 0 {
		flags.StringVar(&v.VideoCodec, "video-codec", "", "ffmpeg video codec")
		flags.StringVar(&v.VideoQuality, "video-quality", "", "Video quality (CRF)")
		flags.StringVar(&v.AudioCodec, "audio-codec", "", "ffmpeg audio codec")
		flags.StringVar(&v.AudioQuality, "audio-quality", "", "Audio bitrate")
		flags.StringVar(&v.CompressionSpeed, "compression-speed", "", "Encoder preset")
	}
	return f
}

// resolve returns the overrides with boolean flags applied only when set.
func (f *overrideFlags) resolve(cmd *cobra.Command) config.Overrides {
	out := f.values
	if flag := cmd.Flags().Lookup("replace"); flag != nil && flag.Changed {
		replace := f.replace
		out.Replace = &replace
	}
	if flag := cmd.Flags().Lookup("tvdb-ignore-failure"); flag != nil && flag.Changed {
		ignore := f.tvdbIgnoreFailure
		out.TVDBIgnoreFailure = &ignore
	}
	return out
}
