package schema

// Visitor is a read-only traversal of a Definition. Constants, enums and
// structs are visited before the first service.
type Visitor interface {
	VisitDefinition(d *Definition)
	VisitDefinitionEnd(d *Definition)
	VisitConstants()
	VisitConstant(c *Constant)
	VisitConstantsEnd()
	VisitEnum(e *Enum)
	VisitEnumField(e *Enum, f EnumField)
	VisitEnumEnd(e *Enum)
	VisitStruct(s *Struct)
	VisitStructField(s *Struct, f Var)
	VisitStructEnd(s *Struct)
	VisitService(s *Service)
	VisitFunction(s *Service, f *Function)
	VisitStream(s *Service, st *Stream)
	VisitServiceEnd(s *Service)
}

// BaseVisitor implements Visitor with no-ops for embedding.
type BaseVisitor struct{}

func (BaseVisitor) VisitDefinition(*Definition) {}
func (BaseVisitor) VisitDefinitionEnd(*Definition) {}
func (BaseVisitor) VisitConstants() {}
func (BaseVisitor) VisitConstant(*Constant) {}
func (BaseVisitor) VisitConstantsEnd() {}
func (BaseVisitor) VisitEnum(*Enum) {}
func (BaseVisitor) VisitEnumField(*Enum, EnumField) {}
func (BaseVisitor) VisitEnumEnd(*Enum) {}
func (BaseVisitor) VisitStruct(*Struct) {}
func (BaseVisitor) VisitStructField(*Struct, Var) {}
func (BaseVisitor) VisitStructEnd(*Struct) {}
func (BaseVisitor) VisitService(*Service) {}
func (BaseVisitor) VisitFunction(*Service, *Function) {}
func (BaseVisitor) VisitStream(*Service, *Stream) {}
func (BaseVisitor) VisitServiceEnd(*Service) {}

// Accept walks d in declaration order, meta service last.
func (d *Definition) Accept(v Visitor) {
	v.VisitDefinition(d)
	if len(d.constants) != 0 {
		v.VisitConstants()
		for _, c := range d.constants {
			v.VisitConstant(c)
		}
		v.VisitConstantsEnd()
	}
	for _, e := range d.enums {
		v.VisitEnum(e)
		for _, f := range e.fields {
			v.VisitEnumField(e, f)
		}
		v.VisitEnumEnd(e)
	}
	for _, s := range d.structs {
		v.VisitStruct(s)
		for _, f := range s.fields {
			v.VisitStructField(s, f)
		}
		v.VisitStructEnd(s)
	}
	for _, s := range d.services {
		v.VisitService(s)
		for _, f := range s.functions {
			v.VisitFunction(s, f)
		}
		for _, st := range s.streams {
			v.VisitStream(s, st)
		}
		v.VisitServiceEnd(s)
	}
	v.VisitDefinitionEnd(d)
}
