package heif2uhdr

const (
	sdrWhiteNits = 203.0
	pqMaxNits    = 10000.0
	hlgMaxNits   = 1000.0
)

const (
	defaultBaseQuality    = 95
	defaultGainMapQuality = 95
	defaultGainMapGamma   = 1.0
)

const (
	jpegrVersion = "1.0"
)
