package types

// Visibility is a member's declared access level.
type Visibility int

const (
	VisPublic Visibility = iota
	VisPrivate
	VisProtected
)

// ProcKind discriminates the five routine shapes spec §3 names.
type ProcKind int

const (
	ProcFunction ProcKind = iota
	ProcSub
	ProcProcedure
	ProcConstructor
	ProcDestructor
)

// Param is one ordered parameter of a procedure signature.
type Param struct {
	Name       string
	Type       *Type
	ByRef      bool
	HasDefault bool
}

// Procedure is a routine signature: kind, return type (Void for subs),
// ordered parameters, and the count of leading parameters that have no
// default (the "required-arg count").
type Procedure struct {
	Name            string
	Kind            ProcKind
	Return          *Type
	Params          []Param
	RequiredArgs    int
	Visibility      Visibility
	IsVirtual       bool
	IsOverride      bool
	IsAbstract      bool
}

// String renders a signature for diagnostics, e.g. "Speak(name: string): void".
func (p *Procedure) String() string {
	s := p.Name + "("
	for i, param := range p.Params {
		if i > 0 {
			s += ", "
		}
		if param.ByRef {
			s += "var "
		}
		s += param.Name + ": " + param.Type.String()
	}
	s += ")"
	if p.Kind == ProcFunction {
		s += ": " + p.Return.String()
	}
	return s
}

// Field is one ordered field of a class, keyed elsewhere by its
// canonical lowercase name.
type Field struct {
	DeclaredName string
	Type         *Type
	Weak         bool
	Visibility   Visibility
}

// Property is a class property surface: a typed accessor pair.
type Property struct {
	Type          *Type
	ReadAccessor  string // field name or method name
	IsReadField   bool   // true if ReadAccessor names a field, false if a method
	WriteAccessor string // empty if read-only
	Visibility    Visibility
}

// Class is the declared shape of a class (spec §3 "Class record").
// Fields, methods, and properties are keyed by canonical lowercase name;
// methods map to an ordered overload set since a class may declare
// multiple overloads of the same name.
type Class struct {
	Name            string
	BaseName        string // "" if no base class
	InterfaceNames  []string
	Fields          map[string]Field            // key: lowercase field name
	FieldOrder      []string                     // declaration order, lowercase keys
	Methods         map[string][]*Procedure      // key: lowercase method name
	Properties      map[string]Property          // key: lowercase property name
	HasConstructor  bool
	HasDestructor   bool
	IsAbstract      bool
}

// NewClassRecord builds an empty class record ready for pass-1 population.
func NewClassRecord(name, baseName string) *Class {
	return &Class{
		Name:       name,
		BaseName:   baseName,
		Fields:     make(map[string]Field),
		Methods:    make(map[string][]*Procedure),
		Properties: make(map[string]Property),
	}
}

// AddField appends a field in declaration order, keyed by its lowercase
// canonical name.
func (c *Class) AddField(key string, f Field) {
	if _, exists := c.Fields[key]; !exists {
		c.FieldOrder = append(c.FieldOrder, key)
	}
	c.Fields[key] = f
}

// AddMethodOverload appends a method overload to the (possibly empty)
// overload set for key.
func (c *Class) AddMethodOverload(key string, p *Procedure) {
	c.Methods[key] = append(c.Methods[key], p)
}

// Interface is the declared shape of an interface: a name, ordered base
// interfaces, and a method table (same overload shape as Class, but
// bodies are never present).
type Interface struct {
	Name        string
	BaseNames   []string
	Methods     map[string][]*Procedure
}

// NewInterface builds an empty interface record.
func NewInterface(name string) *Interface {
	return &Interface{Name: name, Methods: make(map[string][]*Procedure)}
}
