// Package theme holds the color schemes of the cchat TUI. Each scheme is
// built from a small palette; the TUI reads the resolved colors from Active.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme is a resolved color scheme.
type Theme struct {
	Name string

	// Layers, darkest first.
	Background    lipgloss.Color
	Surface       lipgloss.Color
	SurfaceHover  lipgloss.Color
	SurfaceBright lipgloss.Color
	Border        lipgloss.Color
	BorderAccent  lipgloss.Color

	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color
	TextPrimary lipgloss.Color

	Accent       lipgloss.Color
	AccentBright lipgloss.Color

	// Status hues. Budget bars step Green, Yellow, Orange, Red.
	Green       lipgloss.Color
	GreenBright lipgloss.Color
	Yellow      lipgloss.Color
	Orange      lipgloss.Color
	Red         lipgloss.Color
	Blue        lipgloss.Color
	Cyan        lipgloss.Color

	// Transcript labels per message role.
	User      lipgloss.Color
	Assistant lipgloss.Color
	System    lipgloss.Color
	Error     lipgloss.Color

	// Markdown names the glamour style used for assistant replies.
	Markdown string
}

// palette is the minimal set of swatches a scheme is defined by.
type palette struct {
	layers [4]string // background, surface, hover, bright
	border string
	text   [3]string // dim, muted, primary
	accent [2]string // normal, bright

	green, greenBright, yellow, orange, red, blue, cyan string
}

func build(name, markdown string, p palette) Theme {
	c := func(s string) lipgloss.Color { return lipgloss.Color(s) }
	t := Theme{
		Name:          name,
		Background:    c(p.layers[0]),
		Surface:       c(p.layers[1]),
		SurfaceHover:  c(p.layers[2]),
		SurfaceBright: c(p.layers[3]),
		Border:        c(p.border),
		BorderAccent:  c(p.accent[0]),
		TextDim:       c(p.text[0]),
		TextMuted:     c(p.text[1]),
		TextPrimary:   c(p.text[2]),
		Accent:        c(p.accent[0]),
		AccentBright:  c(p.accent[1]),
		Green:         c(p.green),
		GreenBright:   c(p.greenBright),
		Yellow:        c(p.yellow),
		Orange:        c(p.orange),
		Red:           c(p.red),
		Blue:          c(p.blue),
		Cyan:          c(p.cyan),
		Markdown:      markdown,
	}
	t.User = t.Blue
	t.Assistant = t.Accent
	t.System = t.TextMuted
	t.Error = t.Red
	return t
}

var (
	FlexokiDark = build("flexoki-dark", "dark", palette{
		layers: [4]string{"#100F0F", "#1C1B1A", "#282726", "#343331"},
		border: "#403E3C",
		text:   [3]string{"#575653", "#878580", "#FFFCF0"},
		accent: [2]string{"#3AA99F", "#5BC8BE"},
		green:  "#879A39", greenBright: "#A3B859",
		yellow: "#D0A215", orange: "#DA702C", red: "#D14D41",
		blue: "#4385BE", cyan: "#24837B",
	})

	FlexokiLight = build("flexoki-light", "light", palette{
		layers: [4]string{"#FFFCF0", "#F2F0E5", "#E6E4D9", "#DAD8CE"},
		border: "#CECDC3",
		text:   [3]string{"#B7B5AC", "#6F6E69", "#100F0F"},
		accent: [2]string{"#24837B", "#3AA99F"},
		green:  "#66800B", greenBright: "#879A39",
		yellow: "#AD8301", orange: "#BC5215", red: "#AF3029",
		blue: "#205EA6", cyan: "#24837B",
	})

	CatppuccinMocha = build("catppuccin-mocha", "dracula", palette{
		layers: [4]string{"#1E1E2E", "#313244", "#45475A", "#585B70"},
		border: "#585B70",
		text:   [3]string{"#6C7086", "#A6ADC8", "#CDD6F4"},
		accent: [2]string{"#89B4FA", "#B4D0FB"},
		green:  "#A6E3A1", greenBright: "#C6F6C1",
		yellow: "#F9E2AF", orange: "#FAB387", red: "#F38BA8",
		blue: "#89B4FA", cyan: "#94E2D5",
	})

	TokyoNight = build("tokyo-night", "tokyo-night", palette{
		layers: [4]string{"#1A1B26", "#24283B", "#343A52", "#414868"},
		border: "#565F89",
		text:   [3]string{"#565F89", "#A9B1D6", "#C0CAF5"},
		accent: [2]string{"#7AA2F7", "#A9C1FF"},
		green:  "#9ECE6A", greenBright: "#B9E87A",
		yellow: "#E0AF68", orange: "#FF9E64", red: "#F7768E",
		blue: "#7AA2F7", cyan: "#7DCFFF",
	})

	// Terminal sticks to the ANSI 16 colors.
	Terminal = build("terminal", "ascii", palette{
		layers: [4]string{"0", "0", "8", "8"},
		border: "8",
		text:   [3]string{"8", "7", "15"},
		accent: [2]string{"6", "14"},
		green:  "2", greenBright: "10",
		yellow: "3", orange: "3", red: "1",
		blue: "4", cyan: "6",
	})
)

// All lists the schemes in the order settings and setup offer them.
var All = []Theme{FlexokiDark, FlexokiLight, CatppuccinMocha, TokyoNight, Terminal}

// Active is the scheme the TUI renders with.
var Active = FlexokiDark

// ByName returns the named scheme, or FlexokiDark.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return FlexokiDark
}

func SetActive(name string) {
	Active = ByName(name)
}

func Names() []string {
	names := make([]string, len(All))
	for i, t := range All {
		names[i] = t.Name
	}
	return names
}

// RoleColor returns the transcript label color for a message role.
// Unknown roles render like system notes.
func (t Theme) RoleColor(role string) lipgloss.Color {
	switch role {
	case "user":
		return t.User
	case "assistant":
		return t.Assistant
	case "error":
		return t.Error
	default:
		return t.System
	}
}
