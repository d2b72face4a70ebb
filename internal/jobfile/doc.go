// Package jobfile parses YAML job lists. Each job names one action (fetch,
// strip or process) whose keys are the same option names the CLI accepts:
//
//	jobs:
//	  - name: nightly
//	    fetch:
//	      hostname: tivo.lan
//	      title: The Show
//	      dest_dir: /srv/recordings
//	  - strip:
//	      source: /srv/recordings
//	      replace: true
package jobfile
