// Package encode builds the command lines for the decrypt, commercial
// detection and transcode tools, and turns comskip cut lists into ffconcat
// scripts so ffmpeg can drop commercials while encoding.
package encode
