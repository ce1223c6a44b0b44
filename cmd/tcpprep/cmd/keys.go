package cmd

// Viper configuration keys, one per flag, so the same key can be set via
// flag or --config YAML profile; a flag given on the command line takes
// precedence over the profile.
const (
	keyAuto      = "auto"
	keyAutoType  = "auto-type"
	keyCIDR      = "cidr"
	keyPort      = "port"
	keyRegex     = "regex"
	keyInput     = "input"
	keyOutput    = "output"
	keyRatio     = "ratio"
	keyMinMask   = "min-mask"
	keyMaxMask   = "max-mask"
	keyNonIP     = "non-ip"
	keyServices  = "services"
	keyComment   = "comment"
	keyPrintCmt  = "print-comment"
	keyInclude   = "include"
	keyExclude   = "exclude"
	keyStats     = "stats"
	keyLogFormat = "log-format"
)
