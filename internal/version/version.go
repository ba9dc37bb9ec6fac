package version

const (
	AppName = "soundbort"
	Version = "0.1.0"
)
