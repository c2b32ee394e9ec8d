package render

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by control flow or call kind.
	EdgeTaken   string // branch taken, interface calls
	EdgeFall    string // fallthrough of a conditional branch
	EdgeDirect  string // unconditional flow, static and special calls
	EdgeVirtual string // virtual dispatch
	EdgeDynamic string // invokedynamic sites
	EdgeHandler string // exception handler edges

	// Node accents.
	ExitFill     string // blocks ending in a return or throw
	ExternalText string // secondary text

	// Cluster styling.
	ClusterBorder string
	ClusterLabel  string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeTaken:   "#0B3D91", // NASA blue
	EdgeFall:    "#FC3D21", // NASA red
	EdgeDirect:  "#424242", // dark gray
	EdgeVirtual: "#9E9E9E", // gray
	EdgeDynamic: "#00695C", // teal
	EdgeHandler: "#E65100", // deep orange

	ExitFill:     "#ECEFF1", // blue-gray 50
	ExternalText: "#9E9E9E",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}
