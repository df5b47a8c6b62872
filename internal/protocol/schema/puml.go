package schema

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const pumlListMax = 10

// PlantUMLWriter renders a definition as a PlantUML mind map.
type PlantUMLWriter struct {
	BaseVisitor

	b           strings.Builder
	items       []string
	enumLevel   int
	structLevel int
	idWidth     int
}

// WritePlantUML renders d to w.
func WritePlantUML(w io.Writer, d *Definition) error {
	p := &PlantUMLWriter{}
	d.Accept(p)
	_, err := io.WriteString(w, p.String())
	return err
}

func (p *PlantUMLWriter) String() string { return p.b.String() }

func (p *PlantUMLWriter) VisitDefinition(d *Definition) {
	p.b.Reset()
	p.enumLevel, p.structLevel = 2, 2
	p.b.WriteString("@startmindmap\n")
	p.block(d.name, "Yellow", 1, "")
	p.item(0, "Namespace: "+d.namespace)
	p.item(0, "RX buffer size: "+strconv.Itoa(d.rxBufferSize))
	p.item(0, "TX buffer size: "+strconv.Itoa(d.txBufferSize))
	p.b.WriteString(";\n")
}

func (p *PlantUMLWriter) VisitDefinitionEnd(*Definition) {
	p.b.WriteString("\nlegend left\n")
	for _, l := range [][3]string{
		{"Yellow", "<&medical-cross>", "Server"},
		{"PeachPuff", "<&medical-cross>", "Services"},
		{"Orange", "F", "Function"},
		{"Green", "S<&infinity>", "Infinite stream"},
		{"Green", "S", "Finite stream"},
		{"Blue", "<&medical-cross>", "Structs"},
		{"PaleGreen", "<&medical-cross>", "Enums"},
		{"Pink", "<&medical-cross>", "Constants"},
		{"Black", "<&external-link>", "External"},
	} {
		fmt.Fprintf(&p.b, "<size:20><color:%s>%s</color> %s</size>\n", l[0], l[1], l[2])
	}
	p.b.WriteString("endlegend\n@endmindmap\n")
}

func (p *PlantUMLWriter) VisitConstants() {
	p.block("Constants", "Pink", 2, "")
	p.items = p.items[:0]
}

func (p *PlantUMLWriter) VisitConstant(c *Constant) {
	p.items = append(p.items, color(c.cppType, "DarkCyan")+" "+color(c.name, "CornflowerBlue"))
}

func (p *PlantUMLWriter) VisitConstantsEnd() { p.flush() }

func (p *PlantUMLWriter) VisitEnum(e *Enum) {
	p.block(e.name, "PaleGreen", p.enumLevel, externalIcon(e.IsExternal()))
	p.items = p.items[:0]
}

func (p *PlantUMLWriter) VisitEnumField(_ *Enum, f EnumField) {
	p.items = append(p.items, color(f.Name, "CornflowerBlue")+" = "+color(strconv.Itoa(int(f.ID)), "ForestGreen"))
}

func (p *PlantUMLWriter) VisitEnumEnd(*Enum) {
	p.flush()
	p.enumLevel = nextLevel(p.enumLevel)
}

func (p *PlantUMLWriter) VisitStruct(s *Struct) {
	p.block(s.name, "lightblue", p.structLevel, externalIcon(s.IsExternal()))
	p.items = p.items[:0]
}

func (p *PlantUMLWriter) VisitStructField(_ *Struct, f Var) {
	p.items = append(p.items, pumlVar(f))
}

func (p *PlantUMLWriter) VisitStructEnd(*Struct) {
	p.flush()
	p.structLevel = nextLevel(p.structLevel)
}

func (p *PlantUMLWriter) VisitService(s *Service) {
	p.block(s.name, "PeachPuff", 2, "")
	p.item(0, "ID: "+strconv.Itoa(int(s.id)))
	p.b.WriteString(";\n")
	p.idWidth = len(strconv.Itoa(int(s.MaxID())))
}

func (p *PlantUMLWriter) VisitFunction(_ *Service, f *Function) {
	p.signature("Orange", "F ", f.id, f.name, f.params, f.returns)
}

func (p *PlantUMLWriter) VisitStream(_ *Service, st *Stream) {
	marker := "S<&infinity>"
	if st.finite {
		marker = "S "
	}
	p.signature("Green", marker, st.id, st.name, st.params, st.returns)
}

func (p *PlantUMLWriter) signature(c, marker string, id uint8, name string, params, returns []Var) {
	p.b.WriteString("***_ <font:monospaced>[")
	fmt.Fprintf(&p.b, "<color:%s>%s %*d</color>]", c, marker, p.idWidth, id)
	p.b.WriteString("**" + name + "**")
	p.b.WriteString(color("(", "Magenta") + joinVars(params) + color(")", "Magenta"))
	p.b.WriteString(color("<&arrow-right>", "Orange"))
	p.b.WriteString(color(" (", "Magenta") + joinVars(returns) + color(")", "Magenta"))
	p.b.WriteString("</font>\n")
}

func (p *PlantUMLWriter) block(name, background string, level int, icon string) {
	fmt.Fprintf(&p.b, "%s[#%s]: ", strings.Repeat("*", level), background)
	if icon != "" {
		p.b.WriteString(icon + " ")
	}
	p.b.WriteString("**" + name + "**\n----")
}

func (p *PlantUMLWriter) item(level int, text string) {
	indent := strings.Repeat("*", level)
	if level != 0 {
		indent += " "
	}
	p.b.WriteString("\n" + indent + text)
}

func (p *PlantUMLWriter) flush() {
	items := p.items
	if len(items) > pumlListMax {
		items = append(items[:pumlListMax:pumlListMax], "...")
	}
	for _, it := range items {
		p.item(1, "<font:monospaced>"+it+"</font>")
	}
	p.b.WriteString(";\n")
}

func pumlVar(v Var) string {
	t := color(v.base.String(), "DarkCyan")
	switch {
	case v.IsAutoString():
		t = color("string", "DarkCyan")
	case v.IsFixedSizeString():
		t = color("string", "DarkCyan") + "<" + color(strconv.Itoa(v.StringSize()), "ForestGreen") + ">"
	}
	if v.IsOptional() {
		t = color("optional", "DarkCyan") + "<" + t + ">"
	}
	if v.IsArray() {
		t = color("array", "DarkCyan") + "<" + t + ", " + color(strconv.Itoa(v.ArraySize()), "ForestGreen") + ">"
	}
	return t + " " + color(v.name, "CornflowerBlue")
}

func joinVars(vars []Var) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = pumlVar(v)
	}
	return strings.Join(parts, ", ")
}

func color(text, c string) string {
	return "<color:" + c + ">" + text + "</color>"
}

func externalIcon(external bool) string {
	if external {
		return "<&external-link>"
	}
	return ""
}

func nextLevel(level int) int {
	if level >= 7 {
		return 2
	}
	return level + 1
}
