package build

var (
	Name    = "elm-format-on-save"
	Version = "v0.0.0+dev"
)
