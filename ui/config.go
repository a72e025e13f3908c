package ui

// Config contains terminal output configuration.
type Config struct {
	GlamourStyle string `env:"GLAMOUR_STYLE" envDefault:"auto"`
	NoColor      bool   `env:"NO_COLOR"`
	ShowPinyin   bool   `env:"SHIZI_SHOW_PINYIN" envDefault:"true"`

	// Wrap width of rendered units; zero disables wrapping.
	Width uint

	// Disables interactive programs when output is not a terminal.
	Interactive bool
}
